package hardware

import (
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	mqtt.Token
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	ch := make(chan struct{})
	close(ch)
	return &fakeToken{err: err, done: ch}
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type subscription struct {
	topic   string
	qos     byte
	handler mqtt.MessageHandler
}

type fakeClient struct {
	mqtt.Client

	opts         *mqtt.ClientOptions
	connectTok   *fakeToken
	publishTok   *fakeToken
	subscribeTok *fakeToken

	mu            sync.Mutex
	published     []published
	subscriptions []subscription
	disconnects   int
	quiesce       []uint
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		connectTok:   doneToken(nil),
		publishTok:   doneToken(nil),
		subscribeTok: doneToken(nil),
	}
}

func (c *fakeClient) factory(opts *mqtt.ClientOptions) mqtt.Client {
	c.opts = opts
	return c
}

func (c *fakeClient) Connect() mqtt.Token {
	if c.connectTok.err == nil && c.opts != nil && c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return c.connectTok
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.publishTok
}

func (c *fakeClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = append(c.subscriptions, subscription{topic: topic, qos: qos, handler: handler})
	return c.subscribeTok
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.quiesce = append(c.quiesce, quiesce)
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }
