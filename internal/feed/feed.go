// Package feed subscribes to the Binance European options combined
// stream and exposes each subscription as a pull-based event sequence.
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"optionflow/config"
	"optionflow/internal/stream"
	"optionflow/logger"
	"optionflow/models"
)

// Event is a single message from an options subscription: either one
// maturity date's ticker batch or an index price tick. Exactly one of
// the fields is set.
type Event struct {
	Batch *models.OptionBatch
	Index *models.IndexPrice
}

// Client opens option-stream subscriptions. One Client is shared by all
// sessions; each Subscribe call dials its own connection.
type Client struct {
	cfg *config.Config
	log *logger.Log
}

func NewClient(cfg *config.Config) *Client {
	return &Client{cfg: cfg, log: logger.GetLogger()}
}

// Topics builds the subscription topic list for one asset: the index
// price topic plus one ticker topic per maturity date.
func Topics(asset, quote string, maturityDates []time.Time) []string {
	topics := make([]string, 0, len(maturityDates)+1)
	topics = append(topics, fmt.Sprintf("%s%s@index", asset, quote))
	for _, date := range maturityDates {
		topics = append(topics, fmt.Sprintf("%s@ticker@%s", asset, date.Format("060102")))
	}
	return topics
}

// StreamURL appends the topics to the combined-stream endpoint path.
func StreamURL(base string, topics []string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(topics, "/")
}

// Subscribe dials the options stream for the asset's topics and returns
// the event sequence. The sequence ends when its Stop is called or the
// feed closes the connection; transport errors in between are logged,
// not surfaced. When a minimum event interval is configured the
// sequence is throttled.
func (c *Client) Subscribe(asset string, maturityDates []time.Time) (stream.Source[Event], error) {
	topics := Topics(asset, c.cfg.Feed.Quote, maturityDates)
	url := StreamURL(c.cfg.Feed.URL, topics)
	log := c.log.WithComponent("feed").WithFields(logger.Fields{
		"asset":  asset,
		"topics": topics,
	})

	dialer := &websocket.Dialer{HandshakeTimeout: c.cfg.Feed.HandshakeTimeout}

	bridge, err := stream.NewBridge[Event](c.cfg.Feed.BridgeBuffer, func(emit func(Event), stop func()) (stream.Teardown, error) {
		conn, _, err := dialer.Dial(url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial options stream: %w", err)
		}
		log.Info("websocket opened")
		go c.readLoop(conn, asset, log, emit, stop)
		return func() { _ = conn.Close() }, nil
	})
	if err != nil {
		return nil, err
	}

	var src stream.Source[Event] = bridge
	if c.cfg.Feed.MinEventInterval > 0 {
		src = stream.NewThrottle[Event](src, c.cfg.Feed.MinEventInterval)
	}
	return src, nil
}

func (c *Client) readLoop(conn *websocket.Conn, asset string, log *logger.Entry, emit func(Event), stop func()) {
	defer stop()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("websocket read failed")
			} else {
				log.Info("websocket closed")
			}
			return
		}
		ev, err := DecodeMessage(asset, c.cfg.Feed.Quote, msg)
		if err != nil {
			log.WithError(err).Warn("dropping undecodable message")
			continue
		}
		if ev.Batch == nil && ev.Index == nil {
			continue
		}
		emit(ev)
	}
}
