package nodes

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dyluth/nadi/pkg/nadi"
	"github.com/dyluth/nadi/pkg/nadi/samples"
)

// Ticker emits one microseconds-double sample on output 1 every interval.
// The value starts at "start" and grows by "step" per tick.
//
// Config: interval (default "1s"), start (default 0), step (default 1).
func Ticker() nadi.AbstractNode {
	return nadi.NewAbstractNode(nadi.Descriptor{
		Name:        "ticker",
		Version:     "1.0.0",
		Description: "Emits a periodic sample on output 1",
		Channels: nadi.Channels{
			Output: []nadi.ChannelDescriptor{{Number: 1, Name: "out", DataTypes: []string{samples.Format}}},
		},
	}, newTicker)
}

type ticker struct {
	host   nadi.Host
	handle nadi.Handle
	value  float64
	step   float64

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newTicker(p nadi.NodeParams) (nadi.Instance, error) {
	interval, err := durationOption(p.Config, "interval", time.Second)
	if err != nil {
		return nil, err
	}
	start, err := floatOption(p.Config, "start", 0)
	if err != nil {
		return nil, err
	}
	step, err := floatOption(p.Config, "step", 1)
	if err != nil {
		return nil, err
	}

	t := &ticker{
		host:   p.Host,
		handle: p.Handle,
		value:  start,
		step:   step,
		stop:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run(interval)
	return t, nil
}

func (t *ticker) run(interval time.Duration) {
	defer t.wg.Done()
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-t.stop:
			return
		case now := <-tk.C:
			msg := samples.Message(t.handle, 1, []samples.Sample{samples.At(now, t.value)})
			if err := t.host.Send(msg, nadi.ContextHandle); err != nil {
				t.host.Free(msg)
				if errors.Is(err, nadi.ErrNotInitialized) {
					return
				}
				log.Printf("[WARN] ticker %d: send failed: %v", t.handle, err)
			}
			t.value += t.step
		}
	}
}

// Receive is never called; the ticker declares no inputs.
func (t *ticker) Receive(*nadi.Message) {}

// Close stops the tick goroutine and waits for it.
func (t *ticker) Close() error {
	t.once.Do(func() { close(t.stop) })
	t.wg.Wait()
	return nil
}
