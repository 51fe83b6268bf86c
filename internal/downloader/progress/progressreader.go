package progress

import (
	"errors"
	"io"
)

// Reader counts the bytes read through it and calls OnProgress every interval bytes
// and once more when the underlying reader is exhausted.
type Reader struct {
	r          io.Reader
	total      int64
	interval   int64
	onProgress func(read, total int64)

	read        int64
	sinceReport int64
}

// NewReader wraps r. total may be -1 when the size is unknown; cb may be nil.
func NewReader(r io.Reader, total, interval int64, cb func(read, total int64)) *Reader {
	return &Reader{
		r:          r,
		total:      total,
		interval:   interval,
		onProgress: cb,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)

	pr.read += int64(n)
	pr.sinceReport += int64(n)

	if pr.onProgress != nil && pr.sinceReport > 0 &&
		(pr.sinceReport >= pr.interval || errors.Is(err, io.EOF)) {
		pr.onProgress(pr.read, pr.total)
		pr.sinceReport = 0
	}

	return n, err
}

// N returns the number of bytes read so far.
func (pr *Reader) N() int64 {
	return pr.read
}
