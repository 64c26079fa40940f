package slack

import (
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/slack-go/slack/slackevents"
)

// ErrInvalidTimestamp is returned for a Slack ts that is not "<sec>.<usec>"
var ErrInvalidTimestamp = goerr.New("invalid slack timestamp")

// ChannelTypeIM is the channel_type of a direct message
const ChannelTypeIM = "im"

// Message represents a Slack message domain model
type Message struct {
	teamID      string
	channelID   string
	channelType string
	userID      string
	botID       string
	subType     string
	text        string
	ts          string
}

// NewMessage creates a new Message from a Slack Events API event. It returns
// nil for anything but a message callback.
func NewMessage(ev *slackevents.EventsAPIEvent) *Message {
	if ev == nil || ev.Type != slackevents.CallbackEvent {
		return nil
	}

	evt, ok := ev.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || evt == nil {
		return nil
	}

	return &Message{
		teamID:      ev.TeamID,
		channelID:   evt.Channel,
		channelType: evt.ChannelType,
		userID:      evt.User,
		botID:       evt.BotID,
		subType:     evt.SubType,
		text:        evt.Text,
		ts:          evt.TimeStamp,
	}
}

// NewMessageFromData creates a Message from raw fields
func NewMessageFromData(teamID, channelID, channelType, userID, botID, subType, text, ts string) *Message {
	return &Message{
		teamID:      teamID,
		channelID:   channelID,
		channelType: channelType,
		userID:      userID,
		botID:       botID,
		subType:     subType,
		text:        text,
		ts:          ts,
	}
}

// Getters to maintain immutability
func (m *Message) TeamID() string {
	return m.teamID
}

func (m *Message) ChannelID() string {
	return m.channelID
}

func (m *Message) UserID() string {
	return m.userID
}

func (m *Message) Text() string {
	return m.text
}

func (m *Message) TS() string {
	return m.ts
}

// ID is unique per workspace: a ts is only unique within its channel
func (m *Message) ID() string {
	return m.channelID + ":" + m.ts
}

// IsInbound reports whether the message is a plain direct message written by
// a human other than monitoredUserID. Edits, joins, bot posts and the
// monitored user's own replies are not inbound.
func (m *Message) IsInbound(monitoredUserID string) bool {
	if m.channelType != ChannelTypeIM {
		return false
	}
	if m.botID != "" || m.subType != "" || m.userID == "" {
		return false
	}
	return m.userID != monitoredUserID
}

// ToMessageEvent converts the message into a MessageEvent of tenantID. The
// profile is left empty; it is completed during enrichment.
func (m *Message) ToMessageEvent(tenantID types.TenantID) (*model.MessageEvent, error) {
	ts, err := ParseTimestamp(m.ts)
	if err != nil {
		return nil, err
	}
	return &model.MessageEvent{
		TenantID:      tenantID,
		CounterpartID: types.CounterpartID(m.userID),
		MessageID:     m.ID(),
		Text:          m.text,
		Timestamp:     ts,
	}, nil
}

// ParseTimestamp converts a Slack ts ("1700000000.123456") to time
func ParseTimestamp(ts string) (time.Time, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil || s <= 0 {
		return time.Time{}, goerr.Wrap(ErrInvalidTimestamp, "failed to parse slack ts", goerr.V("ts", ts))
	}

	var usec int64
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))
		usec, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, goerr.Wrap(ErrInvalidTimestamp, "failed to parse slack ts", goerr.V("ts", ts))
		}
	}

	return time.Unix(s, usec*int64(time.Microsecond)).UTC(), nil
}
