package providers

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gudfood/realtime/config"
	"github.com/gudfood/realtime/src/auth"
	"github.com/gudfood/realtime/src/client"
	"github.com/gudfood/realtime/src/transport"
	"github.com/gudfood/realtime/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type BrokerSuite struct {
	suite.Suite
	cfg    *config.BrokerConfig
	broker *Broker
	addr   string
}

func TestBrokerSuite(t *testing.T) {
	suite.Run(t, new(BrokerSuite))
}

func (s *BrokerSuite) SetupTest() {
	s.cfg = config.DefaultBrokerConfig()
	s.start()
}

func (s *BrokerSuite) TearDownTest() {
	s.Require().NoError(s.broker.Deactivate())
}

// start (re)creates the broker from s.cfg on a free loopback port.
func (s *BrokerSuite) start() {
	if s.broker != nil {
		s.Require().NoError(s.broker.Deactivate())
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.addr = ln.Addr().String()

	s.broker = NewBroker(s.cfg, zerolog.Nop())
	s.broker.Activate(nil)
	go func() { _ = s.broker.Serve(ln) }()
}

func (s *BrokerSuite) newClient(mutate func(*config.ClientConfig)) *client.Client {
	cfg := config.DefaultClientConfig()
	cfg.BrokerURL = "ws://" + s.addr + s.cfg.Endpoint
	cfg.ReconnectDelay = 0
	cfg.HandshakeTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	c := client.New(cfg, transport.NewWebSocketDialer(cfg.HandshakeTimeout), zerolog.Nop())
	s.T().Cleanup(func() { _ = c.Disconnect() })
	return c
}

func (s *BrokerSuite) get(path string) (int, map[string]any) {
	resp, err := s.broker.app.Test(httptestRequest(http.MethodGet, path, ""))
	s.Require().NoError(err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(s.T(), resp.Body)
}

func (s *BrokerSuite) post(path, body string) (int, map[string]any) {
	req := httptestRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.broker.app.Test(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(s.T(), resp.Body)
}

func httptestRequest(method, path, body string) *http.Request {
	return httptest.NewRequest(method, path, strings.NewReader(body))
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	out := map[string]any{}
	data, _ := io.ReadAll(r)
	_ = json.Unmarshal(data, &out)
	return out
}

func (s *BrokerSuite) TestHealth() {
	status, body := s.get("/health")
	s.Equal(http.StatusOK, status)
	s.Equal("ok", body["status"])
}

func (s *BrokerSuite) TestInfo() {
	status, body := s.get("/api/broker/info")
	s.Equal(http.StatusOK, status)
	s.Equal("1.2", body["stomp"])
	s.Equal("/ws", body["endpoint"])
	s.Equal(false, body["relay"])
}

func (s *BrokerSuite) TestEndpointRequiresUpgrade() {
	resp, err := http.Get("http://" + s.addr + s.cfg.Endpoint)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUpgradeRequired, resp.StatusCode)
}

func (s *BrokerSuite) TestPublishValidation() {
	status, _ := s.post("/api/broker/publish", `{`)
	s.Equal(http.StatusBadRequest, status)

	status, _ = s.post("/api/broker/publish", `{"destination":"topic/x","data":{}}`)
	s.Equal(http.StatusBadRequest, status)

	status, _ = s.post("/api/broker/publish", `{"destination":"/topic/x"}`)
	s.Equal(http.StatusBadRequest, status)

	status, body := s.post("/api/broker/publish", `{"destination":"/topic/x","data":{"a":1}}`)
	s.Equal(http.StatusAccepted, status)
	s.Equal(true, body["published"])
}

func (s *BrokerSuite) TestAdminPublishReachesSubscriber() {
	c := s.newClient(func(cfg *config.ClientConfig) { cfg.Login = "buyer-1" })
	s.Require().NoError(c.Connect(context.Background()))

	got := make(chan types.Message, 2)
	_, err := c.Subscribe("/user/queue/notifications", func(m types.Message) { got <- m })
	s.Require().NoError(err)
	_, err = c.Subscribe("/topic/announcements/4", func(m types.Message) { got <- m })
	s.Require().NoError(err)
	s.Require().Eventually(func() bool { return len(s.broker.Hub().Destinations()) == 2 }, 2*time.Second, 10*time.Millisecond)

	status, _ := s.post("/api/broker/publish", `{"destination":"/user/queue/notifications","user":"buyer-1","data":{"id":1,"message":"shipped"}}`)
	s.Equal(http.StatusAccepted, status)
	status, _ = s.post("/api/broker/publish", `{"destination":"/topic/announcements/4","data":{"content":"closed monday"}}`)
	s.Equal(http.StatusAccepted, status)

	var destinations []string
	for range 2 {
		select {
		case m := <-got:
			destinations = append(destinations, m.Destination)
			s.Equal("application/json", m.ContentType)
		case <-time.After(2 * time.Second):
			s.FailNow("message not delivered")
		}
	}
	s.ElementsMatch([]string{"/user/queue/notifications", "/topic/announcements/4"}, destinations)

	status, body := s.get("/api/broker/sessions")
	s.Equal(http.StatusOK, status)
	s.EqualValues(1, body["count"])
}

func (s *BrokerSuite) TestChatBetweenClients() {
	buyer := s.newClient(func(cfg *config.ClientConfig) { cfg.Login = "buyer" })
	distributor := s.newClient(func(cfg *config.ClientConfig) { cfg.Login = "distributor" })
	s.Require().NoError(buyer.Connect(context.Background()))
	s.Require().NoError(distributor.Connect(context.Background()))

	got := make(chan types.Message, 1)
	_, err := distributor.Subscribe("/topic/chat/11", func(m types.Message) { got <- m })
	s.Require().NoError(err)
	s.Require().Eventually(func() bool {
		return s.broker.Hub().Destinations()["/topic/chat/11"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Require().NoError(buyer.Publish(context.Background(), "/app/chat/11", map[string]string{"content": "hi"}))
	select {
	case m := <-got:
		s.Equal("/topic/chat/11", m.Destination)
		s.Equal("buyer", m.Headers["sender"])
		s.JSONEq(`{"content":"hi"}`, string(m.Body))
	case <-time.After(2 * time.Second):
		s.FailNow("chat message not delivered")
	}
}

func (s *BrokerSuite) TestConnectionLimit() {
	s.cfg.MaxConnections = 1
	s.start()

	first := s.newClient(nil)
	s.Require().NoError(first.Connect(context.Background()))
	s.Require().Eventually(func() bool { return s.broker.Hub().SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	second := s.newClient(nil)
	s.Error(second.Connect(context.Background()))
	s.False(second.IsConnected())
}

func (s *BrokerSuite) TestBadTokenRejected() {
	s.cfg.JWTSecret = "s3cret"
	s.start()

	c := s.newClient(func(cfg *config.ClientConfig) { cfg.AccessToken = "forged" })
	err := c.Connect(context.Background())
	var be *client.BrokerError
	s.Require().ErrorAs(err, &be)
	s.Equal("authentication failed", be.Message)

	token, err := auth.GenerateToken("s3cret", "42", "buyer", time.Minute)
	s.Require().NoError(err)
	ok := s.newClient(func(cfg *config.ClientConfig) { cfg.AccessToken = token })
	s.Require().NoError(ok.Connect(context.Background()))
	info := s.broker.Hub().SessionInfo(ok.Session())
	s.Require().NotNil(info)
	s.Equal("42", info.UserID)
}

func (s *BrokerSuite) getWithToken(path, token string) int {
	req := httptestRequest(http.MethodGet, path, "")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.broker.app.Test(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func (s *BrokerSuite) TestAdminRoutesRequireAdministrator() {
	s.cfg.JWTSecret = "s3cret"
	s.start()

	s.Equal(http.StatusOK, s.getWithToken("/health", ""))
	s.Equal(http.StatusUnauthorized, s.getWithToken("/api/broker/info", ""))
	s.Equal(http.StatusUnauthorized, s.getWithToken("/api/broker/info", "forged"))

	buyer, err := auth.GenerateToken("s3cret", "42", "buyer", time.Minute)
	s.Require().NoError(err)
	s.Equal(http.StatusForbidden, s.getWithToken("/api/broker/sessions", buyer))

	admin, err := auth.GenerateToken("s3cret", "1", "administrator", time.Minute)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, s.getWithToken("/api/broker/info", admin))

	req := httptestRequest(http.MethodPost, "/api/broker/publish", `{"destination":"/topic/x","data":{"a":1}}`)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.broker.app.Test(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}
