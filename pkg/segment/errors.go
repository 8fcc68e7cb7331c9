package segment

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyBuffer     = errors.New("segment: empty buffer")
	ErrTooManySegments = errors.New("segment: too many segments")
	ErrOutOfSequence   = errors.New("segment: frame out of sequence")
	ErrSeriesAborted   = errors.New("segment: series aborted by peer")
	ErrMalformedSeries = errors.New("segment: malformed series")
)

// SequenceError 数据帧序号与期望不符，errors.Is(err, ErrOutOfSequence) 为真
type SequenceError struct {
	Expected uint8
	Got      uint8
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("segment: frame out of sequence: expected %d, got %d", e.Expected, e.Got)
}

func (e *SequenceError) Is(target error) bool { return target == ErrOutOfSequence }
