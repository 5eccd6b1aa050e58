package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MathewBravo/realtime-db/internal/configs"
	"github.com/MathewBravo/realtime-db/internal/events"
)

const flushTimeout = 5 * time.Second

// Encoder turns an event into a record value.
type Encoder func(events.Wire) ([]byte, error)

type KafkaSink struct {
	client   *kgo.Client
	config   *configs.SinkConfig
	encode   Encoder
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewKafkaSink(cfg *configs.SinkConfig) (*KafkaSink, error) {
	encode, err := getEncoder(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	cmp := getCompression(cfg.Compression)
	batch := cfg.BatchSize * 1024

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(cmp),
		kgo.ProducerBatchMaxBytes(int32(batch)),
		kgo.ProducerLinger(cfg.FlushInterval),
	)
	if err != nil {
		return nil, err
	}

	return &KafkaSink{
		client:   cl,
		config:   cfg,
		encode:   encode,
		stopChan: make(chan struct{}),
	}, nil
}

// Start produces every event read from eventCh until the channel closes or
// Stop is called. Events already buffered in eventCh when Stop is called are
// still produced.
func (k *KafkaSink) Start(eventCh <-chan events.ChangeEvent) error {
	k.wg.Go(func() {
		defer k.close()
		for {
			select {
			case event, ok := <-eventCh:
				if !ok {
					return
				}
				k.publish(event)
			case <-k.stopChan:
				k.drain(eventCh)
				return
			}
		}
	})
	return nil
}

// drain publishes what is queued without waiting for more.
func (k *KafkaSink) drain(eventCh <-chan events.ChangeEvent) {
	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			k.publish(event)
		default:
			return
		}
	}
}

func (k *KafkaSink) publish(event events.ChangeEvent) {
	record, err := k.handleEvent(event)
	if err != nil {
		log.Error().Err(err).Str("table", event.Table).Msg("Failed to handle event")
		return
	}
	k.produceRecord(record)
}

func (k *KafkaSink) Stop() {
	k.stopOnce.Do(func() { close(k.stopChan) })
	k.wg.Wait()
}

func (k *KafkaSink) close() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := k.client.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("Flush before close failed")
	}
	k.client.Close()
}

func (k *KafkaSink) handleEvent(event events.ChangeEvent) (*kgo.Record, error) {
	return buildRecord(event, k.encode)
}

// buildRecord keys records by table so one table's changes stay ordered
// within a partition.
func buildRecord(event events.ChangeEvent, encode Encoder) (*kgo.Record, error) {
	value, err := encode(event.Wire())
	if err != nil {
		return nil, fmt.Errorf("SINK ERR: encode %s event: %w", event.Table, err)
	}

	return &kgo.Record{
		Topic: event.Route,
		Key:   []byte(event.Table),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(event.Kind.String())},
		},
		Timestamp: event.Ts,
	}, nil
}

func (k *KafkaSink) produceRecord(record *kgo.Record) {
	k.client.Produce(context.Background(), record, func(r *kgo.Record, err error) {
		if err != nil {
			log.Error().Err(err).Str("topic", r.Topic).Msg("Produce failed")
		}
	})
}

func getEncoder(encoding string) (Encoder, error) {
	switch encoding {
	case "", "json":
		return encodeJSON, nil
	case "msgpack":
		return encodeMsgpack, nil
	default:
		return nil, fmt.Errorf("SINK ERR: unsupported encoding %q", encoding)
	}
}

func encodeJSON(w events.Wire) ([]byte, error) {
	return json.Marshal(w)
}

func encodeMsgpack(w events.Wire) ([]byte, error) {
	return msgpack.Marshal(w)
}

func getCompression(compression string) kgo.CompressionCodec {
	switch compression {
	case "gzip":
		return kgo.GzipCompression()
	case "snappy":
		return kgo.SnappyCompression()
	case "lz4":
		return kgo.Lz4Compression()
	case "zstd":
		return kgo.ZstdCompression()
	default:
		return kgo.NoCompression()
	}
}
