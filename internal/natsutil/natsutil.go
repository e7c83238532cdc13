// Package natsutil centralizes NATS JetStream connection setup and
// the get-or-create idioms every service uses for streams, KV
// buckets, and object stores, so retry/creation semantics don't drift
// between binaries.
package natsutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Connect dials the first reachable server in servers (comma-separated
// in the environment, already split by the caller) using credsFile if
// non-empty, and returns a JetStream context.
func Connect(servers []string, credsFile string) (*nats.Conn, jetstream.JetStream, error) {
	if len(servers) == 0 {
		return nil, nil, fmt.Errorf("natsutil: no servers configured")
	}
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	if credsFile != "" {
		opts = append(opts, nats.UserCredentials(credsFile))
	}
	nc, err := nats.Connect(strings.Join(servers, ","), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("natsutil: connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("natsutil: jetstream: %w", err)
	}
	return nc, js, nil
}

// GetOrCreateKV returns the named KV bucket, creating it with the
// given history depth if it does not yet exist.
func GetOrCreateKV(ctx context.Context, js jetstream.JetStream, bucket string, history uint8) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("natsutil: get kv bucket %q: %w", bucket, err)
	}
	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: history,
	})
	if err != nil {
		return nil, fmt.Errorf("natsutil: create kv bucket %q: %w", bucket, err)
	}
	return kv, nil
}

// GetOrCreateObjectStore returns the named object store bucket,
// creating it if it does not yet exist.
func GetOrCreateObjectStore(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.ObjectStore, error) {
	store, err := js.ObjectStore(ctx, bucket)
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("natsutil: get object store %q: %w", bucket, err)
	}
	store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: bucket})
	if err != nil {
		return nil, fmt.Errorf("natsutil: create object store %q: %w", bucket, err)
	}
	return store, nil
}

// GetOrCreateStream returns the named stream, creating it with the
// given subject filter if it does not yet exist.
func GetOrCreateStream(ctx context.Context, js jetstream.JetStream, name string, subjects []string) (jetstream.Stream, error) {
	stream, err := js.Stream(ctx, name)
	if err == nil {
		return stream, nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return nil, fmt.Errorf("natsutil: get stream %q: %w", name, err)
	}
	stream, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("natsutil: create stream %q: %w", name, err)
	}
	return stream, nil
}

// GetOrCreateDurablePullConsumer returns the named durable pull
// consumer on stream, creating it with an explicit ack policy filtered
// to filterSubject if it does not yet exist.
func GetOrCreateDurablePullConsumer(ctx context.Context, stream jetstream.Stream, durable, filterSubject string) (jetstream.Consumer, error) {
	cons, err := stream.Consumer(ctx, durable)
	if err == nil {
		return cons, nil
	}
	if !errors.Is(err, jetstream.ErrConsumerNotFound) {
		return nil, fmt.Errorf("natsutil: get consumer %q: %w", durable, err)
	}
	cons, err = stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: filterSubject,
	})
	if err != nil {
		return nil, fmt.Errorf("natsutil: create consumer %q: %w", durable, err)
	}
	return cons, nil
}
