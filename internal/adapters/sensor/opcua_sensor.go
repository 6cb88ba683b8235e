package sensor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/gangulwar/rollX/internal/ports"
)

// OPCUAConfig points the accelerometer at three OPC UA variables, one per axis.
type OPCUAConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	ApplicationName string        `yaml:"application_name"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	XNode           string        `yaml:"x_node"`
	YNode           string        `yaml:"y_node"`
	ZNode           string        `yaml:"z_node"`
}

func (c *OPCUAConfig) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "RollX Producer"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

func (c *OPCUAConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.XNode == "" || c.YNode == "" || c.ZNode == "" {
		return errors.New("x_node, y_node and z_node are required")
	}
	for _, n := range []struct{ key, id string }{{"x_node", c.XNode}, {"y_node", c.YNode}, {"z_node", c.ZNode}} {
		if !nodeIDPattern.MatchString(n.id) {
			return fmt.Errorf("%s %q is not an OPC UA node id (want [ns=<n>;]i|s|g|b=<id>)", n.key, n.id)
		}
	}
	return nil
}

// ua.ParseNodeID treats any unprefixed text as a string id, so the form is
// checked before parsing.
var nodeIDPattern = regexp.MustCompile(`^(ns=\d+;)?[isgb]=\S.*$`)

// OPCUA reads acceleration from an OPC UA server. Each Subscribe opens its
// own client session and monitored items; Cancel tears both down.
type OPCUA struct {
	cfg   OPCUAConfig
	nodes [3]*ua.NodeID
	obs   ports.Observability
}

func NewOPCUA(cfg OPCUAConfig, obs ports.Observability) (*OPCUA, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &OPCUA{cfg: cfg, obs: obs}
	for i, raw := range []string{cfg.XNode, cfg.YNode, cfg.ZNode} {
		id, err := ua.ParseNodeID(raw)
		if err != nil {
			return nil, fmt.Errorf("parse node id %q: %w", raw, err)
		}
		s.nodes[i] = id
	}
	return s, nil
}

func (s *OPCUA) Available() bool {
	return s != nil && s.cfg.Endpoint != ""
}

// Subscribe returns immediately; the session is opened in the background so
// the caller is never blocked on the network.
func (s *OPCUA) Subscribe(interval time.Duration, handler func(x, y, z float64)) (ports.Subscription, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	opts := s.clientOptions()
	client, err := opcua.NewClient(s.cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(cancel)
	// run only returns nil once ctx is cancelled.
	go func() {
		defer close(sub.done)
		err := s.run(ctx, client, interval, handler)
		if ctx.Err() != nil {
			return
		}
		s.logError("opcua_sensor_stopped", err)
		sub.err = err
	}()
	return sub, nil
}

func (s *OPCUA) run(ctx context.Context, client *opcua.Client, interval time.Duration, handler func(x, y, z float64)) error {
	connectCtx, cancelConnect := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	err := client.Connect(connectCtx)
	cancelConnect()
	if err != nil {
		return fmt.Errorf("opcua connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}()

	notifyCh := make(chan *opcua.PublishNotificationData, 12)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: interval}, notifyCh)
	if err != nil {
		return fmt.Errorf("opcua subscribe: %w", err)
	}
	defer func() {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sub.Cancel(cancelCtx)
	}()

	for i, id := range s.nodes {
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(id, ua.AttributeIDValue, uint32(i+1))
		req.RequestedParameters.SamplingInterval = float64(interval / time.Millisecond)
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			return fmt.Errorf("monitor node %s: %w", id, err)
		}
		if len(res.Results) == 0 {
			return fmt.Errorf("monitor node %s failed: empty result", id)
		}
		if res.Results[0].StatusCode != ua.StatusOK {
			return fmt.Errorf("monitor node %s failed: %s", id, res.Results[0].StatusCode)
		}
	}

	var axes axisState
	for {
		select {
		case <-ctx.Done():
			return nil
		case notif := <-notifyCh:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				s.logError("opcua_notification_error", notif.Error)
				continue
			}
			data, ok := notif.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			if axes.apply(data) {
				handler(axes.values[0], axes.values[1], axes.values[2])
			}
		}
	}
}

// axisState keeps the latest value per axis. A reading is emitted once every
// axis has reported at least once.
type axisState struct {
	values [3]float64
	seen   [3]bool
}

func (a *axisState) apply(data *ua.DataChangeNotification) bool {
	changed := false
	for _, item := range data.MonitoredItems {
		idx := int(item.ClientHandle) - 1
		if idx < 0 || idx > 2 || item.Value == nil {
			continue
		}
		fv, ok := variantToFloat(item.Value.Value)
		if !ok {
			continue
		}
		a.values[idx] = fv
		a.seen[idx] = true
		changed = true
	}
	return changed && a.seen[0] && a.seen[1] && a.seen[2]
}

func (s *OPCUA) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(s.cfg.SecurityPolicy)),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (s *OPCUA) logError(msg string, err error) {
	if s.obs == nil {
		return
	}
	s.obs.LogError(msg, err, ports.Field{Key: "endpoint", Value: s.cfg.Endpoint})
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Sensor = (*OPCUA)(nil)
