package flow

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DataHolder is a named, typed buffer terminating one end of a Transport.
// Payloads are float64 samples stamped with the event sequence number that
// produced them.
type DataHolder struct {
	name string
	typ  string
	data []float64
	seq  int64
	tp   *Transport
	sink *fileSink
}

// NewDataHolder creates a DataHolder with a zeroed payload of size samples.
func NewDataHolder(name, typ string, size int) *DataHolder {
	dh := &DataHolder{
		name: name,
		typ:  typ,
		data: make([]float64, size),
	}
	dh.tp = newTransport(dh)
	return dh
}

// Name returns the channel name.
func (dh *DataHolder) Name() string { return dh.name }

// Type returns the payload type name.
func (dh *DataHolder) Type() string { return dh.typ }

// Transport returns the owned Transport.
func (dh *DataHolder) Transport() *Transport { return dh.tp }

// Data returns the payload. The slice is owned by the DataHolder.
func (dh *DataHolder) Data() []float64 { return dh.data }

// Seq returns the sequence number of the current payload.
func (dh *DataHolder) Seq() int64 { return dh.seq }

// Set replaces the payload with a copy of data.
func (dh *DataHolder) Set(seq int64, data []float64) {
	if cap(dh.data) < len(data) {
		dh.data = make([]float64, len(data))
	}
	dh.data = dh.data[:len(data)]
	copy(dh.data, data)
	dh.seq = seq
}

// CopyFrom replaces the payload with src's.
func (dh *DataHolder) CopyFrom(src *DataHolder) {
	dh.Set(src.seq, src.data)
}

// Read fills the payload from the inbound hop.
func (dh *DataHolder) Read(ctx context.Context) error {
	if err := dh.tp.Read(ctx); err != nil {
		return fmt.Errorf("read %s: %w", dh.name, err)
	}
	return nil
}

// Write publishes the payload on the outbound hop and to the file sink.
func (dh *DataHolder) Write(ctx context.Context) error {
	if err := dh.tp.Write(ctx); err != nil {
		return fmt.Errorf("write %s: %w", dh.name, err)
	}
	if dh.sink != nil {
		return dh.sink.write(dh)
	}
	return nil
}

// SetFile redirects every written payload to fileName. An empty name closes
// the redirection.
func (dh *DataHolder) SetFile(fileName string) error {
	if dh.sink != nil {
		if err := dh.sink.close(); err != nil {
			return fmt.Errorf("closing sink of %s: %w", dh.name, err)
		}
		dh.sink = nil
	}
	if fileName == "" {
		return nil
	}
	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("opening sink of %s: %w", dh.name, err)
	}
	dh.sink = &fileSink{file: f, enc: yaml.NewEncoder(f)}
	logrus.Debugf("DataHolder %s: sink redirected to %s", dh.name, fileName)
	return nil
}

// SinkRecord is one document of a DataHolder file sink.
type SinkRecord struct {
	Channel string    `yaml:"channel"`
	Seq     int64     `yaml:"seq"`
	Data    []float64 `yaml:"data,flow"`
}

type fileSink struct {
	file *os.File
	enc  *yaml.Encoder
}

func (s *fileSink) write(dh *DataHolder) error {
	rec := SinkRecord{Channel: dh.name, Seq: dh.seq, Data: dh.data}
	if err := s.enc.Encode(&rec); err != nil {
		return fmt.Errorf("sink %s: %w", dh.name, err)
	}
	return nil
}

func (s *fileSink) close() error {
	if err := s.enc.Close(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
