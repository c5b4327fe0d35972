package net

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/google/uuid"

	"gungnir/internal/engine"
	"gungnir/internal/lob"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short for specified username length")
)

type MessageType int

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	LogBook
)

type ReportMessageType int

const (
	OrderAck ReportMessageType = iota
	ExecutionReport
	CancelAck
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// Message format constants
const (
	BaseMessageHeaderLen        = 2
	NewOrderMessageHeaderLen    = 2 + 2 + 8 + 8 + 1 + 1
	CancelOrderMessageHeaderLen = 2 + 16
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, errors.New("message too short to contain header")
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case LogBook, Heartbeat:
		return BaseMessage{TypeOf: typeOf}, nil
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

type NewOrderMessage struct {
	BaseMessage
	AssetType   engine.AssetType // 2 bytes
	Kind        lob.Kind         // 2 bytes
	LimitPrice  float64          // 8 bytes
	Volume      uint64           // 8 bytes
	Side        lob.Side         // 1 byte
	UsernameLen uint8            // 1 byte
	Username    string           // n bytes
}

// Order builds the submitter-facing order carrying the exchange-assigned
// id and arrival timestamp. Market orders drop the wire price field.
func (o *NewOrderMessage) Order(id lob.Oid, ts lob.Timestamp) lob.Order {
	if o.Kind == lob.Market {
		return lob.NewMarketOrder(id, o.Side, ts, lob.Volume(o.Volume))
	}
	return lob.NewLimitOrder(id, o.Side, ts, lob.Price(o.LimitPrice), lob.Volume(o.Volume))
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}

	m.AssetType = engine.AssetType(binary.BigEndian.Uint16(msg[0:2]))
	m.Kind = lob.Kind(binary.BigEndian.Uint16(msg[2:4]))
	m.LimitPrice = math.Float64frombits(binary.BigEndian.Uint64(msg[4:12]))
	m.Volume = binary.BigEndian.Uint64(msg[12:20])
	m.Side = lob.Side(msg[20])
	m.UsernameLen = uint8(msg[21])

	// Calculate expected total length.
	expectedTotalLen := int(NewOrderMessageHeaderLen) + int(m.UsernameLen)
	if len(msg) < expectedTotalLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Username = string(msg[22 : 22+m.UsernameLen])

	return m, nil
}

type CancelOrderMessage struct {
	BaseMessage
	AssetType engine.AssetType // 2 bytes
	Handle    uuid.UUID        // 16 bytes
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}

	if len(msg) < CancelOrderMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m.AssetType = engine.AssetType(binary.BigEndian.Uint16(msg[0:2]))
	copy(m.Handle[:], msg[2:18])

	return m, nil
}

type Report struct {
	MessageType     ReportMessageType // 1 byte
	AssetType       engine.AssetType  // 1 byte
	Side            lob.Side          // 1 byte
	Timestamp       uint64            // 8 bytes
	Volume          uint64            // 8 bytes
	Price           float64           // 8 bytes
	CounterpartyLen uint16            // 2 bytes
	ErrStrLen       uint32            // 4 bytes
	Handle          uuid.UUID         // 16 bytes
	Err             string            // n bytes
	Counterparty    string            // n bytes
}

const reportFixedHeaderLen = 1 + 1 + 1 + 8 + 8 + 8 + 2 + 4 + 16

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() []byte {
	totalSize := reportFixedHeaderLen + len(r.Err) + len(r.Counterparty)

	buf := make([]byte, totalSize)
	buf[0] = byte(r.MessageType)
	buf[1] = byte(r.AssetType)
	buf[2] = byte(r.Side)
	binary.BigEndian.PutUint64(buf[3:11], r.Timestamp)
	binary.BigEndian.PutUint64(buf[11:19], r.Volume)
	binary.BigEndian.PutUint64(buf[19:27], math.Float64bits(r.Price))
	binary.BigEndian.PutUint16(buf[27:29], r.CounterpartyLen)
	binary.BigEndian.PutUint32(buf[29:33], r.ErrStrLen)
	copy(buf[33:49], r.Handle[:])

	offset := reportFixedHeaderLen
	if r.ErrStrLen > 0 {
		copy(buf[offset:], r.Err)
	}
	offset += int(r.ErrStrLen)
	if r.CounterpartyLen > 0 {
		copy(buf[offset:], r.Counterparty)
	}
	return buf
}
