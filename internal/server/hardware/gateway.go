package hardware

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/logging"
)

// DefaultBase is the topic prefix of the box controllers.
const DefaultBase = "tcc/caixa"

// Sender delivers a command to one device.
type Sender interface {
	Send(ctx context.Context, deviceID string, cmd Command) Result
}

// ClientFactory builds a paho client; tests replace it with a fake.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// GatewayConfig addresses the broker the controllers listen on.
// PublishTimeout bounds both the connect and the publish acknowledgment;
// Mode and TimeoutS are passed through to the controller runner.
type GatewayConfig struct {
	Host           string
	Port           int
	User           string
	Pass           string
	Base           string
	PublishTimeout time.Duration
	Mode           string
	TimeoutS       float64
}

func (c GatewayConfig) broker() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

func (c GatewayConfig) base() string {
	b := strings.TrimRight(c.Base, "/")
	if b == "" {
		return DefaultBase
	}
	return b
}

// MQTTGateway publishes each command on a short-lived connection and waits
// for the QoS 1 acknowledgment, bounded by PublishTimeout.
type MQTTGateway struct {
	cfg       GatewayConfig
	newClient ClientFactory
	newID     func() string
	logger    logging.Logger
}

func NewMQTTGateway(cfg GatewayConfig, logger logging.Logger) *MQTTGateway {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = "fg"
	}
	if cfg.TimeoutS <= 0 {
		cfg.TimeoutS = 10
	}
	return &MQTTGateway{
		cfg:       cfg,
		newClient: mqtt.NewClient,
		newID:     uuid.NewString,
		logger:    logger.With("module", "hardware"),
	}
}

// Topic is the run topic of deviceID.
func (g *MQTTGateway) Topic(deviceID string) string {
	return fmt.Sprintf("%s/%s/run", g.cfg.base(), deviceID)
}

func (g *MQTTGateway) Send(ctx context.Context, deviceID string, cmd Command) Result {
	alias := cmd.Alias()
	if alias == "" {
		return failed("invalid command")
	}

	env := &Envelope{
		ReqID:    fmt.Sprintf("sessao-%s-%s", alias, g.newID()),
		Alias:    alias,
		Args:     []string{},
		Mode:     g.cfg.Mode,
		TimeoutS: g.cfg.TimeoutS,
	}
	topic := g.Topic(deviceID)

	res := g.publish(ctx, topic, env)
	res.Topic = topic
	res.Payload = env
	if res.OK {
		g.logger.Info(ctx, "run command published", "topic", topic, "alias", alias, "req_id", env.ReqID)
	} else {
		g.logger.Error(ctx, "run command failed", "topic", topic, "alias", alias, "error", res.Error)
	}
	return res
}

func (g *MQTTGateway) publish(ctx context.Context, topic string, env *Envelope) Result {
	body, err := json.Marshal(env)
	if err != nil {
		return failed(err.Error())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(g.cfg.broker()).
		SetClientID("caixa-run-" + g.newID()).
		SetConnectTimeout(g.cfg.PublishTimeout).
		SetAutoReconnect(false)
	if g.cfg.User != "" {
		opts.SetUsername(g.cfg.User)
		opts.SetPassword(g.cfg.Pass)
	}

	client := g.newClient(opts)
	if err := wait(ctx, client.Connect(), g.cfg.PublishTimeout); err != nil {
		// A connect still in flight would otherwise leave the client behind.
		client.Disconnect(0)
		return failed("connect: " + err.Error())
	}
	defer client.Disconnect(250)

	if err := wait(ctx, client.Publish(topic, 1, false, body), g.cfg.PublishTimeout); err != nil {
		return failed("publish: " + err.Error())
	}
	return Result{OK: true}
}

// wait blocks until tok completes, the timeout elapses or ctx ends.
func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
