package hardware

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/logging"
)

// CardRead is a card tap as published by a reader, {uid, reader_id}.
// Raw keeps the original document.
type CardRead struct {
	UID      string          `json:"uid"`
	ReaderID string          `json:"reader_id"`
	Raw      json.RawMessage `json:"-"`
}

// ParseCardRead decodes a reader payload. Missing fields are left empty.
func ParseCardRead(b []byte) (CardRead, error) {
	var r CardRead
	if err := json.Unmarshal(b, &r); err != nil {
		return CardRead{}, err
	}
	r.Raw = append(json.RawMessage(nil), b...)
	return r, nil
}

// TapHandler receives every decoded card read.
type TapHandler func(ctx context.Context, read CardRead) error

// BridgeConfig addresses the broker the card readers publish to.
// ConnectTimeout bounds the connect and the subscription; HandleTimeout
// bounds each TapHandler call.
type BridgeConfig struct {
	Host           string
	Port           int
	User           string
	Pass           string
	Base           string
	ClientID       string
	ConnectTimeout time.Duration
	HandleTimeout  time.Duration
}

// RFIDBridge subscribes to <base>/+/rfid/uid and feeds card reads to a
// TapHandler. Start runs at most once per bridge.
type RFIDBridge struct {
	cfg       BridgeConfig
	handle    TapHandler
	newClient ClientFactory
	logger    logging.Logger

	once     sync.Once
	startErr error

	mu     sync.Mutex
	client mqtt.Client
	ctx    context.Context
}

func NewRFIDBridge(cfg BridgeConfig, handle TapHandler, logger logging.Logger) *RFIDBridge {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 5 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "caixa-rfid-" + uuid.NewString()
	}
	return &RFIDBridge{
		cfg:       cfg,
		handle:    handle,
		newClient: mqtt.NewClient,
		logger:    logger.With("module", "rfid-bridge"),
	}
}

// Topic is the wildcard subscription of all readers.
func (b *RFIDBridge) Topic() string {
	base := strings.TrimRight(b.cfg.Base, "/")
	if base == "" {
		base = DefaultBase
	}
	return base + "/+/rfid/uid"
}

// Start connects and subscribes. Later calls return the first outcome
// without reconnecting. ctx is the parent of every handler call.
func (b *RFIDBridge) Start(ctx context.Context) error {
	b.once.Do(func() {
		b.startErr = b.start(ctx)
	})
	return b.startErr
}

func (b *RFIDBridge) start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", b.cfg.Host, b.cfg.Port)).
		SetClientID(b.cfg.ClientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectTimeout(b.cfg.ConnectTimeout)
	if b.cfg.User != "" {
		opts.SetUsername(b.cfg.User)
		opts.SetPassword(b.cfg.Pass)
	}
	// subscribing on connect restores the subscription after a reconnect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		topic := b.Topic()
		tok := c.Subscribe(topic, 0, b.onMessage)
		if err := wait(ctx, tok, b.cfg.ConnectTimeout); err != nil {
			b.logger.Error(ctx, "subscribe failed", "topic", topic, "error", err)
			return
		}
		b.logger.Info(ctx, "subscribed", "topic", topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn(ctx, "connection lost", "error", err)
	})

	b.mu.Lock()
	b.ctx = ctx
	b.client = b.newClient(opts)
	client := b.client
	b.mu.Unlock()

	b.logger.Info(ctx, "starting bridge", "broker", fmt.Sprintf("%s:%d", b.cfg.Host, b.cfg.Port))
	if err := wait(ctx, client.Connect(), b.cfg.ConnectTimeout); err != nil {
		b.Stop()
		return fmt.Errorf("rfid bridge connect: %w", err)
	}
	return nil
}

// Stop disconnects the bridge, if it was started.
func (b *RFIDBridge) Stop() {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
	}
}

func (b *RFIDBridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	b.mu.Lock()
	parent := b.ctx
	b.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	read, err := ParseCardRead(msg.Payload())
	if err != nil {
		b.logger.Warn(parent, "invalid card payload", "topic", msg.Topic(), "error", err)
		return
	}
	b.logger.Info(parent, "card read", "topic", msg.Topic(), "uid", read.UID, "reader_id", read.ReaderID)

	ctx, cancel := context.WithTimeout(parent, b.cfg.HandleTimeout)
	defer cancel()
	if err := b.handle(ctx, read); err != nil {
		b.logger.Error(ctx, "card read not processed", "uid", read.UID, "error", err)
	}
}
