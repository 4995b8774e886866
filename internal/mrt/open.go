package mrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/route-beacon/peer-stats/internal/codec"
)

// Stream is an open RIB dump. Close releases the underlying file or response body.
type Stream struct {
	*Reader
	closers []io.Closer
}

func (s *Stream) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Opener resolves snapshot locators (local paths or http(s) URLs) to streams.
type Opener struct {
	client     *http.Client
	maxRetries uint64
	backoff    func() backoff.BackOff
	logger     *zap.Logger
}

func NewOpener(timeout time.Duration, maxRetries int, logger *zap.Logger) *Opener {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Opener{
		client: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
		}},
		maxRetries: uint64(maxRetries),
		backoff: func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = 2 * time.Second
			eb.MaxElapsedTime = 0
			return eb
		},
		logger: logger.Named("mrt"),
	}
}

func isRemote(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

// Open returns a decoded stream for locator, decompressed according to its extension.
func (o *Opener) Open(ctx context.Context, locator string) (*Stream, error) {
	var raw io.ReadCloser
	var err error
	if isRemote(locator) {
		raw, err = o.fetch(ctx, locator)
	} else {
		raw, err = os.Open(locator)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", locator, err)
	}

	dec, err := codec.ForPath(locator).NewReader(raw)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("opening %s: %w", locator, err)
	}
	return &Stream{Reader: NewReader(dec), closers: []io.Closer{raw, dec}}, nil
}

func (o *Opener) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(o.backoff(), o.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		o.logger.Warn("fetch failed, retrying",
			zap.String("url", url),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotifyWithData(func() (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := o.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}
		resp.Body.Close()
		err = fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, b, notify)
}
