package engine

import (
	"io"
	"sync/atomic"
)

// progressReader wraps a response body and adds every read to the group counter
type progressReader struct {
	reader io.Reader
	read   int64
	group  *atomic.Int64
	onRead func()
}

func newProgressReader(r io.Reader, group *atomic.Int64, onRead func()) *progressReader {
	return &progressReader{
		reader: r,
		group:  group,
		onRead: onRead,
	}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.group.Add(int64(n))
		if pr.onRead != nil {
			pr.onRead()
		}
	}
	return n, err
}

// rate turns successive byte counts into a bytes-per-second sample
type rate struct {
	last int64
}

func (r *rate) sample(downloaded int64, elapsedSeconds float64) int64 {
	delta := downloaded - r.last
	r.last = downloaded
	if elapsedSeconds <= 0 || delta <= 0 {
		return 0
	}
	return int64(float64(delta) / elapsedSeconds)
}

// eta estimates the remaining time at the given speed, 0 when unknown
func eta(downloaded, total, bytesPerSecond int64) int64 {
	if bytesPerSecond <= 0 || total <= downloaded {
		return 0
	}
	return (total - downloaded) * 1000 / bytesPerSecond
}
