package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"roundify/models"
)

// Result is a finished clip.
type Result struct {
	JobID    string
	Download string // absolute URL
	TTL      int
	Telegram bool
}

// Clip runs the whole flow for the file at path: upload, subscribe, start
// the conversion on the push channel and follow it to the terminal event.
// A zero opts.Duration becomes the default clip for the source. A dropped
// channel is reopened once. observe, if set, sees the session after every
// event.
func (c *Client) Clip(ctx context.Context, s *Session, path string, opts models.ClipOptions, maxClip float64, observe func(*Session, models.Event)) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if err := s.SelectFile(info.Size()); err != nil {
		return nil, err
	}

	meta, err := c.UploadFile(ctx, path)
	if err != nil {
		s.Fail(err)
		return nil, err
	}
	if err := s.MetadataReceived(*meta); err != nil {
		return nil, err
	}

	stream, err := c.Subscribe(ctx, meta.JobID)
	if err != nil {
		s.Fail(err)
		return nil, err
	}
	defer func() { stream.Close() }()

	if opts.Duration == 0 {
		opts.Duration = meta.DefaultClip(maxClip)
		if opts.Offset+opts.Duration > meta.Duration {
			opts.Duration = meta.Duration - opts.Offset
		}
	}
	if err := s.Submit(opts.Duration); err != nil {
		return nil, err
	}
	if err := stream.StartConversion(opts); err != nil {
		s.Fail(err)
		return nil, err
	}

	resumed := false
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: stream ended without a result", ErrConnection)
		}
		if errors.Is(err, ErrConnection) && !resumed && ctx.Err() == nil {
			resumed = true
			stream.Close()
			if next, rerr := c.resume(ctx, s, meta.JobID, opts); rerr == nil {
				stream = next
				continue
			}
		}
		if err != nil {
			s.Fail(err)
			return nil, err
		}
		s.Apply(ev)
		if observe != nil {
			observe(s, ev)
		}

		switch ev.Type {
		case models.EventDone:
			return &Result{
				JobID:    meta.JobID,
				Download: c.ResolveURL(ev.Download),
				TTL:      ev.TTL,
				Telegram: ev.Telegram,
			}, nil
		case models.EventError:
			return nil, &APIError{Message: ev.Message}
		case models.EventRejected:
			if s.State() == Ready {
				return nil, &APIError{Message: ev.Message}
			}
		}
	}
}

// resume reopens the push channel after a drop. The server replays the
// job's current state on subscribe; a request it never received is sent
// again.
func (c *Client) resume(ctx context.Context, s *Session, jobID string, opts models.ClipOptions) (*Stream, error) {
	stream, err := c.Subscribe(ctx, jobID)
	if err != nil {
		return nil, err
	}
	st, err := c.Status(ctx, jobID)
	if err != nil {
		stream.Close()
		return nil, err
	}
	if st.Status == models.StatusCreated && s.State() == Submitting {
		if err := stream.StartConversion(opts); err != nil {
			stream.Close()
			return nil, err
		}
	}
	return stream, nil
}
