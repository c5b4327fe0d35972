package net

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"gungnir/internal/engine"
	"gungnir/internal/lob"
)

func buildNewOrder(kind lob.Kind, side lob.Side, price float64, volume uint64, owner string) []byte {
	buf := make([]byte, BaseMessageHeaderLen+NewOrderMessageHeaderLen+len(owner))
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	binary.BigEndian.PutUint16(buf[2:4], uint16(engine.Equities))
	binary.BigEndian.PutUint16(buf[4:6], uint16(kind))
	binary.BigEndian.PutUint64(buf[6:14], math.Float64bits(price))
	binary.BigEndian.PutUint64(buf[14:22], volume)
	buf[22] = byte(side)
	buf[23] = uint8(len(owner))
	copy(buf[24:], owner)
	return buf
}

func TestParseMessage_NewOrder(t *testing.T) {
	msg, err := parseMessage(buildNewOrder(lob.Limit, lob.Sell, 21.0453, 100, "alice"))
	assert.NoError(t, err)

	order, ok := msg.(NewOrderMessage)
	assert.True(t, ok)
	assert.Equal(t, NewOrder, order.GetType())
	assert.Equal(t, engine.Equities, order.AssetType)
	assert.Equal(t, lob.Limit, order.Kind)
	assert.Equal(t, lob.Sell, order.Side)
	assert.Equal(t, 21.0453, order.LimitPrice)
	assert.Equal(t, uint64(100), order.Volume)
	assert.Equal(t, "alice", order.Username)
}

func TestNewOrderMessage_Order(t *testing.T) {
	msg, err := parseMessage(buildNewOrder(lob.Limit, lob.Buy, 22.0, 50, "bob"))
	assert.NoError(t, err)
	orderMsg := msg.(NewOrderMessage)

	order := orderMsg.Order(7, lob.Timestamp(123))
	assert.Equal(t, lob.Oid(7), order.ID)
	assert.Equal(t, lob.Buy, order.Side)
	assert.Equal(t, lob.Limit, order.Kind)
	assert.NotNil(t, order.Price)
	assert.Equal(t, lob.Price(22.0), *order.Price)
	assert.Equal(t, lob.Volume(50), order.Volume)

	// Market orders drop the wire price.
	msg, err = parseMessage(buildNewOrder(lob.Market, lob.Buy, 22.0, 50, "bob"))
	assert.NoError(t, err)
	orderMsg = msg.(NewOrderMessage)
	order = orderMsg.Order(8, lob.Timestamp(124))
	assert.Equal(t, lob.Market, order.Kind)
	assert.Nil(t, order.Price)
}

func TestParseMessage_NewOrder_TruncatedUsername(t *testing.T) {
	buf := buildNewOrder(lob.Limit, lob.Buy, 10.0, 1, "carol")
	_, err := parseMessage(buf[:len(buf)-2])
	assert.ErrorIs(t, err, ErrMessageTooShort)
}

func TestParseMessage_CancelOrder(t *testing.T) {
	handle := uuid.New()
	buf := make([]byte, BaseMessageHeaderLen+CancelOrderMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	binary.BigEndian.PutUint16(buf[2:4], uint16(engine.Equities))
	copy(buf[4:20], handle[:])

	msg, err := parseMessage(buf)
	assert.NoError(t, err)
	cancel, ok := msg.(CancelOrderMessage)
	assert.True(t, ok)
	assert.Equal(t, engine.Equities, cancel.AssetType)
	assert.Equal(t, handle, cancel.Handle)
}

func TestParseMessage_Invalid(t *testing.T) {
	_, err := parseMessage([]byte{0xff})
	assert.Error(t, err)

	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, 999)
	_, err = parseMessage(buf)
	assert.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestReport_Serialize(t *testing.T) {
	handle := uuid.New()
	report := Report{
		MessageType:     ExecutionReport,
		AssetType:       engine.Equities,
		Side:            lob.Buy,
		Timestamp:       1234,
		Volume:          50,
		Price:           21.0453,
		CounterpartyLen: 5,
		Handle:          handle,
		Counterparty:    "alice",
	}

	buf := report.Serialize()
	assert.Len(t, buf, reportFixedHeaderLen+5)
	assert.Equal(t, byte(ExecutionReport), buf[0])
	assert.Equal(t, uint64(1234), binary.BigEndian.Uint64(buf[3:11]))
	assert.Equal(t, uint64(50), binary.BigEndian.Uint64(buf[11:19]))
	assert.Equal(t, 21.0453, math.Float64frombits(binary.BigEndian.Uint64(buf[19:27])))
	assert.Equal(t, handle[:], buf[33:49])
	assert.Equal(t, "alice", string(buf[reportFixedHeaderLen:]))
}
