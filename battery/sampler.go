package battery

import (
	"fmt"
	"time"

	"github.com/TheCacophonyProject/tc2-rate-controller/ratecontrol"
)

const (
	maxReadAttempts = 3
	readRetryDelay  = 100 * time.Millisecond
)

var sleepFn = time.Sleep

// Sampler collects a batch of raw ADC counts and reduces it to a single
// battery estimate in millivolts.
type Sampler struct {
	reader Reader
}

func NewSampler(reader Reader) *Sampler {
	return &Sampler{reader: reader}
}

func (s *Sampler) readWithRetries() (uint16, error) {
	var raw uint16
	var err error
	for attempt := range maxReadAttempts {
		if attempt > 0 {
			sleepFn(readRetryDelay)
		}
		raw, err = s.reader.ReadRaw()
		if err == nil {
			return raw, nil
		}
	}
	return 0, err
}

// ReadBatch reads SamplesPerEstimate counts. Each sample is retried a few
// times before the whole batch is abandoned.
func (s *Sampler) ReadBatch() (ratecontrol.RawSampleBatch, error) {
	var batch ratecontrol.RawSampleBatch
	for i := range batch {
		raw, err := s.readWithRetries()
		if err != nil {
			return batch, fmt.Errorf("failed to read battery sample %d: %w", i, err)
		}
		batch[i] = raw
	}
	return batch, nil
}

// Estimate reads a batch and returns its median in millivolts together with
// the batch it was taken from.
func (s *Sampler) Estimate() (uint16, ratecontrol.RawSampleBatch, error) {
	batch, err := s.ReadBatch()
	if err != nil {
		return 0, batch, err
	}
	return ratecontrol.MedianMillivolts(batch), batch, nil
}
