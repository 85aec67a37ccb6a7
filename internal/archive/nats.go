// Package archive copies delivered speech files into a NATS JetStream object
// store so they outlive the temporary workspace.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Store is a tts.Archiver backed by a JetStream object store bucket.
type Store struct {
	conn   *nats.Conn // nil when the caller owns the connection
	bucket string
	store  nats.ObjectStore
}

// Connect dials the NATS server at url and opens bucket, creating it if needed.
// The returned Store owns the connection; call Close when done.
func Connect(url, bucket string) (*Store, error) {
	nc, err := nats.Connect(url,
		nats.Name("tts-server"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("archive disconnected from nats", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("archive reconnected to nats", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	s, err := New(js, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.conn = nc
	return s, nil
}

// New opens bucket on an existing JetStream context, creating it if needed.
func New(js nats.JetStreamContext, bucket string) (*Store, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Synthesized speech files.",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("creating object store bucket %q: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("binding to object store bucket %q: %w", bucket, err)
		}
	}

	return &Store{bucket: bucket, store: store}, nil
}

// Bucket returns the object store bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Upload stores data under key, replacing any previous object.
func (s *Store) Upload(ctx context.Context, key string, data []byte) error {
	_, err := s.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "audio/ogg",
	}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("putting %q into bucket %q: %w", key, s.bucket, err)
	}

	slog.Debug("archived speech", "bucket", s.bucket, "key", key, "bytes", len(data))
	return nil
}

// Download returns the object stored under key.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.store.Get(key, nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("getting %q from bucket %q: %w", key, s.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, fmt.Errorf("reading %q: %w", key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("closing %q: %w", key, closeErr)
	}
	return data, nil
}

// Close drains the connection opened by Connect. It is a no-op for stores
// built with New.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
