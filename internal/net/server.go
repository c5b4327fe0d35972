package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"gungnir/internal/engine"
	"gungnir/internal/lob"
	"gungnir/internal/utils"
)

const (
	MAX_RECV_SIZE      = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = 30 * time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	conn net.Conn
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// Engine is the interface that provides access to order handling.
type Engine interface {
	PlaceOrder(assetType engine.AssetType, order lob.Order) error
	CancelOrder(assetType engine.AssetType, id lob.Oid) (lob.CancellationReport, error)
	LogBook()
}

// gatewayOrder is the server-side record of a client order: the internal
// id behind the client-facing handle, who owns it, and how much of it is
// still open so the record can be evicted once fully filled.
type gatewayOrder struct {
	oid       lob.Oid
	handle    uuid.UUID
	asset     engine.AssetType
	owner     string
	side      lob.Side
	remaining lob.Volume
}

type Server struct {
	address string
	port    int
	engine  Engine
	pool    utils.WorkerPool
	cancel  context.CancelFunc

	clientSessions     map[string]ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage

	// Gateway state below is only touched from the session handler
	// goroutine, so it needs no locking.
	nextOid   lob.Oid
	orders    map[uuid.UUID]*gatewayOrder
	byOid     map[lob.Oid]*gatewayOrder
	cancelled map[uuid.UUID]lob.Oid
	owners    map[string]string // owner -> client address
}

func New(address string, port int, eng Engine) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         eng,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		clientMessages: make(chan ClientMessage, 1),
		nextOid:        1,
		orders:         make(map[uuid.UUID]*gatewayOrder),
		byOid:          make(map[lob.Oid]*gatewayOrder),
		cancelled:      make(map[uuid.UUID]lob.Oid),
		owners:         make(map[string]string),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	// Start the worker pool.
	s.pool.Setup(t, s.handleConnection)

	// Start the session handler.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server running")

	// Start accepting connections.
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("new client added")
			// Add the client to client sessions we are tracking.
			// We expect to potentially maintain a long TCP session.
			s.addClientSession(conn)

			// Pass over the connection to be read from.
			s.pool.AddTask(conn)
		}
	}
}

// ReportFill implements engine.Reporter. Each party receives an execution
// report priced at the resting (older) order's limit; ids are assigned in
// arrival order, so the smaller id is the resting one.
func (s *Server) ReportFill(asset engine.AssetType, fill lob.Fill) {
	buy, buyOk := s.byOid[fill.BuyOrderID]
	sell, sellOk := s.byOid[fill.SellOrderID]
	if !buyOk || !sellOk {
		log.Error().
			Str("buyOrder", fill.BuyOrderID.String()).
			Str("sellOrder", fill.SellOrderID.String()).
			Msg("fill for untracked order")
		return
	}

	tradePrice := fill.SellOrderPrice
	if fill.BuyOrderID < fill.SellOrderID {
		tradePrice = fill.BuyOrderPrice
	}

	s.settle(buy, fill.Volume)
	s.settle(sell, fill.Volume)

	s.sendExecution(buy, sell.owner, tradePrice, fill.Volume)
	s.sendExecution(sell, buy.owner, tradePrice, fill.Volume)
}

// ReportFillAtMarket implements engine.Reporter. The trade price is the
// resting limit order's.
func (s *Server) ReportFillAtMarket(asset engine.AssetType, fill lob.FillAtMarket) {
	market, marketOk := s.byOid[fill.MarketOrderID]
	resting, restingOk := s.byOid[fill.OrderID]
	if !marketOk || !restingOk {
		log.Error().
			Str("marketOrder", fill.MarketOrderID.String()).
			Str("order", fill.OrderID.String()).
			Msg("market fill for untracked order")
		return
	}

	s.settle(resting, fill.FilledVolume)

	s.sendExecution(market, resting.owner, fill.OrderPrice, fill.FilledVolume)
	s.sendExecution(resting, market.owner, fill.OrderPrice, fill.FilledVolume)
}

// settle reduces an order record's open volume, evicting it when done.
func (s *Server) settle(order *gatewayOrder, volume lob.Volume) {
	if volume < order.remaining {
		order.remaining = order.remaining.Sub(volume)
		return
	}
	delete(s.orders, order.handle)
	delete(s.byOid, order.oid)
}

func (s *Server) sendExecution(order *gatewayOrder, counterparty string, price lob.Price, volume lob.Volume) {
	report := Report{
		MessageType:     ExecutionReport,
		AssetType:       order.asset,
		Side:            order.side,
		Timestamp:       uint64(time.Now().UnixMilli()),
		Volume:          uint64(volume),
		Price:           float64(price),
		CounterpartyLen: uint16(len(counterparty)),
		Handle:          order.handle,
		Counterparty:    counterparty,
	}
	if err := s.sendReport(order.owner, &report); err != nil {
		log.Error().Err(err).Str("owner", order.owner).Msg("unable to send execution report")
	}
}

// sendReport writes a report to the session registered for the owner.
func (s *Server) sendReport(owner string, report *Report) error {
	address, ok := s.owners[owner]
	if !ok {
		return ErrClientDoesNotExist
	}

	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	client, ok := s.clientSessions[address]
	if !ok {
		return ErrClientDoesNotExist
	}
	if _, err := client.conn.Write(report.Serialize()); err != nil {
		delete(s.clientSessions, address)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

func (s *Server) reportError(clientAddress string, reported error) {
	errStr := reported.Error()
	report := Report{
		MessageType: ErrorReport,
		Timestamp:   uint64(time.Now().UnixMilli()),
		ErrStrLen:   uint32(len(errStr)),
		Err:         errStr,
	}

	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	client, ok := s.clientSessions[clientAddress]
	if !ok {
		return
	}
	if _, err := client.conn.Write(report.Serialize()); err != nil {
		delete(s.clientSessions, clientAddress)
	}
}

// sessionHandler reads off incoming messages from clients and handles
// high-level session logic. Messages are received from the pool of
// workers; all gateway and book state is mutated on this goroutine only.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().
					Err(err).
					Str("clientAddress", message.clientAddress).
					Msg("error handling message")
				// Log the error back to the client.
				s.reportError(message.clientAddress, err)
			}
		}
	}
}

func (s *Server) handleMessage(message ClientMessage) error {
	switch message.message.GetType() {
	case NewOrder:
		order, ok := message.message.(NewOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		return s.handleNewOrder(message.clientAddress, order)
	case CancelOrder:
		cancel, ok := message.message.(CancelOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		return s.handleCancelOrder(cancel)
	case LogBook:
		s.engine.LogBook()
	case Heartbeat:
	default:
		log.Error().
			Int("messageType", int(message.message.GetType())).
			Msg("invalid message type")
		return ErrInvalidMessageType
	}
	return nil
}

func (s *Server) handleNewOrder(clientAddress string, msg NewOrderMessage) error {
	oid := s.nextOid
	s.nextOid++
	order := msg.Order(oid, lob.NewTimestamp(time.Now()))

	handle := uuid.New()
	record := &gatewayOrder{
		oid:       oid,
		handle:    handle,
		asset:     msg.AssetType,
		owner:     msg.Username,
		side:      msg.Side,
		remaining: order.Volume,
	}
	s.orders[handle] = record
	s.byOid[oid] = record
	s.owners[msg.Username] = clientAddress

	err := s.engine.PlaceOrder(msg.AssetType, order)
	if err != nil {
		delete(s.orders, handle)
		delete(s.byOid, oid)
		return err
	}

	// Market orders are settled within the engine call; nothing rests.
	if msg.Kind == lob.Market {
		delete(s.orders, handle)
		delete(s.byOid, oid)
	}

	ack := Report{
		MessageType: OrderAck,
		AssetType:   msg.AssetType,
		Side:        msg.Side,
		Timestamp:   uint64(time.Now().UnixMilli()),
		Volume:      uint64(msg.Volume),
		Price:       msg.LimitPrice,
		Handle:      handle,
	}
	if err := s.sendReport(msg.Username, &ack); err != nil {
		log.Error().Err(err).Str("owner", msg.Username).Msg("unable to send order ack")
	}
	return nil
}

func (s *Server) handleCancelOrder(msg CancelOrderMessage) error {
	record, ok := s.orders[msg.Handle]
	if !ok {
		if oid, wasCancelled := s.cancelled[msg.Handle]; wasCancelled {
			return lob.AlreadyCancelledError{OrderID: oid}
		}
		return lob.NotFoundError{}
	}

	if _, err := s.engine.CancelOrder(record.asset, record.oid); err != nil {
		return err
	}

	delete(s.orders, msg.Handle)
	delete(s.byOid, record.oid)
	s.cancelled[msg.Handle] = record.oid

	ack := Report{
		MessageType: CancelAck,
		AssetType:   record.asset,
		Side:        record.side,
		Timestamp:   uint64(time.Now().UnixMilli()),
		Volume:      uint64(record.remaining),
		Handle:      msg.Handle,
	}
	if err := s.sendReport(record.owner, &ack); err != nil {
		log.Error().Err(err).Str("owner", record.owner).Msg("unable to send cancel ack")
	}
	return nil
}

// handleConnection is a short-lived worker method which reads the next
// message off the connection, parses and passes it forward to
// sessionHandler to handle it. If the connection dies, the client session
// is cleaned up.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	address := conn.RemoteAddr().String()
	if err := conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("address", address).
			Err(err).
			Msg("failed setting deadline for connection")
		return nil
	}

	buffer := make([]byte, MAX_RECV_SIZE)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			log.Info().
				Err(err).
				Str("address", address).
				Msg("closing client connection")

			// If a read from a client fails, it is likely that the
			// client has exited. Clean up the client session.
			s.deleteClientSession(address)
			conn.Close()
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().
				Err(err).
				Str("address", address).
				Msg("error parsing message")
			s.reportError(address, err)
		} else {
			// Pass over to the message handling buffer.
			s.clientMessages <- ClientMessage{
				message:       message,
				clientAddress: address,
			}
		}

		// Push the client connection back to handle the next message.
		s.pool.AddTask(conn)
	}
	return nil
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{
		conn: conn,
	}
}

// deleteClientSession is an atomic map remove
func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	delete(s.clientSessions, address)
}
