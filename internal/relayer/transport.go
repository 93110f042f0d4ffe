// internal/relayer/transport.go
package relayer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/tarlanisaev/poolbridge/internal/bridge"
)

// Delivery is one verified bridge message together with the target accounts
// the relayer resolved for it. The settlement processor re-verifies every
// binding; a malformed delivery costs a rejection, never funds.
type Delivery struct {
	Message bridge.Message

	TargetPool solana.PublicKey
	Recipient  solana.PublicKey

	RecipientShareAccount solana.PublicKey
	RecipientReserveA     solana.PublicKey
	RecipientReserveB     solana.PublicKey
}

// Transport is the source of verified bridge messages. The channel closes
// when the source is exhausted or shut down.
type Transport interface {
	Deliveries() <-chan Delivery
}

// ChannelTransport is the in-process Transport, used by tests and by
// embedders that already hold verified messages.
type ChannelTransport struct {
	ch chan Delivery
}

func NewChannelTransport(buffer int) *ChannelTransport {
	return &ChannelTransport{ch: make(chan Delivery, buffer)}
}

func (t *ChannelTransport) Deliveries() <-chan Delivery { return t.ch }

// Submit enqueues one delivery. It blocks when the buffer is full.
func (t *ChannelTransport) Submit(d Delivery) { t.ch <- d }

// Close ends the stream; workers drain what is already queued.
func (t *ChannelTransport) Close() { close(t.ch) }

// wireDelivery is the JSON line format StreamTransport reads. Binary fields
// travel base58 encoded, payloads hex-free as raw base64 via encoding/json's
// []byte handling.
type wireDelivery struct {
	EmitterChain   uint16 `json:"emitter_chain"`
	EmitterAddress string `json:"emitter_address"`
	Sequence       uint64 `json:"sequence"`
	Payload        []byte `json:"payload"`

	TargetPool            string `json:"target_pool"`
	Recipient             string `json:"recipient"`
	RecipientShareAccount string `json:"recipient_share_account"`
	RecipientReserveA     string `json:"recipient_reserve_a"`
	RecipientReserveB     string `json:"recipient_reserve_b"`
}

// StreamTransport reads one JSON delivery per line from a reader, typically
// stdin fed by an off-chain observer. Lines that fail to parse are logged
// and skipped; the stream keeps going.
type StreamTransport struct {
	ch     chan Delivery
	logger *zap.Logger
}

func NewStreamTransport(r io.Reader, buffer int, logger *zap.Logger) *StreamTransport {
	t := &StreamTransport{
		ch:     make(chan Delivery, buffer),
		logger: logger.Named("transport"),
	}
	go t.read(r)
	return t
}

func (t *StreamTransport) Deliveries() <-chan Delivery { return t.ch }

func (t *StreamTransport) read(r io.Reader) {
	defer close(t.ch)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		d, err := parseDelivery(line)
		if err != nil {
			t.logger.Warn("Skipping malformed delivery line", zap.Error(err))
			continue
		}
		t.ch <- d
	}
	if err := scanner.Err(); err != nil {
		t.logger.Error("Delivery stream read error", zap.Error(err))
	}
}

func parseDelivery(line []byte) (Delivery, error) {
	var w wireDelivery
	if err := json.Unmarshal(line, &w); err != nil {
		return Delivery{}, fmt.Errorf("decode delivery: %w", err)
	}

	emitter, err := base58.Decode(w.EmitterAddress)
	if err != nil || len(emitter) != 32 {
		return Delivery{}, fmt.Errorf("emitter address %q is not a 32-byte base58 value", w.EmitterAddress)
	}

	d := Delivery{
		Message: bridge.Message{
			EmitterChain: w.EmitterChain,
			Sequence:     w.Sequence,
			Payload:      w.Payload,
		},
	}
	copy(d.Message.EmitterAddress[:], emitter)

	for _, f := range []struct {
		name string
		raw  string
		dst  *solana.PublicKey
	}{
		{"target_pool", w.TargetPool, &d.TargetPool},
		{"recipient", w.Recipient, &d.Recipient},
		{"recipient_share_account", w.RecipientShareAccount, &d.RecipientShareAccount},
		{"recipient_reserve_a", w.RecipientReserveA, &d.RecipientReserveA},
		{"recipient_reserve_b", w.RecipientReserveB, &d.RecipientReserveB},
	} {
		if f.raw == "" {
			continue
		}
		key, err := solana.PublicKeyFromBase58(f.raw)
		if err != nil {
			return Delivery{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = key
	}
	return d, nil
}
