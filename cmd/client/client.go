package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gungnir/internal/engine"
	"gungnir/internal/lob"
	gungnirNet "gungnir/internal/net"
)

// reportFixedHeaderLen matches the server's report layout:
// 1+1+1+8+8+8+2+4+16 = 49 bytes.
const reportFixedHeaderLen = 49

func main() {
	// CLI parameter parsing.
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner username (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'log']")

	// Order parameters.
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	price := flag.Float64("price", 100.0, "Limit price")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	// Cancel parameters.
	handleStr := flag.String("handle", "", "Handle of the order to cancel (from the ack)")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	// Start listening for reports.
	go readReports(conn)

	side := lob.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = lob.Sell
	}

	kind := lob.Limit
	if strings.ToLower(*typeStr) == "market" {
		kind = lob.Market
	}

	switch strings.ToLower(*action) {
	case "place":
		for _, q := range parseQuantities(*qtyStr) {
			err := sendPlaceOrder(conn, *owner, engine.Equities, kind, *price, q, side)
			if err != nil {
				log.Printf("Failed to place order (Qty: %d): %v", q, err)
			} else {
				fmt.Printf("-> Sent %s Order: %d @ %.4f\n", strings.ToUpper(*sideStr), q, *price)
			}
			// Small sleep so the server sequences the batch distinctly.
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *handleStr == "" {
			log.Fatal("Error: -handle is required for cancellation")
		}
		handle, err := uuid.Parse(*handleStr)
		if err != nil {
			log.Fatalf("Invalid handle %q: %v", *handleStr, err)
		}
		if err := sendCancelOrder(conn, engine.Equities, handle); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent Cancel Request for %s\n", handle)
		}

	case "log":
		if err := sendLog(conn); err != nil {
			log.Printf("Failed to send log request: %v", err)
		} else {
			fmt.Println("-> Sent Log Request")
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	// Keep the client alive to receive execution reports.
	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

// parseQuantities splits a comma-separated string into a slice of uint64
func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: Invalid quantity '%s', skipping.", p)
		}
	}
	return result
}

// sendPlaceOrder constructs and sends the NewOrder message
func sendPlaceOrder(conn net.Conn, owner string, asset engine.AssetType, kind lob.Kind, price float64, qty uint64, side lob.Side) error {
	usernameLen := len(owner)
	totalLen := gungnirNet.BaseMessageHeaderLen + gungnirNet.NewOrderMessageHeaderLen + usernameLen

	buf := make([]byte, totalLen)

	// Header.
	binary.BigEndian.PutUint16(buf[0:2], uint16(gungnirNet.NewOrder))

	// Body.
	binary.BigEndian.PutUint16(buf[2:4], uint16(asset))
	binary.BigEndian.PutUint16(buf[4:6], uint16(kind))
	binary.BigEndian.PutUint64(buf[6:14], math.Float64bits(price))
	binary.BigEndian.PutUint64(buf[14:22], qty)
	buf[22] = byte(side)
	buf[23] = uint8(usernameLen)
	copy(buf[24:], owner)

	_, err := conn.Write(buf)
	return err
}

// sendCancelOrder constructs and sends the CancelOrder message
func sendCancelOrder(conn net.Conn, asset engine.AssetType, handle uuid.UUID) error {
	buf := make([]byte, gungnirNet.BaseMessageHeaderLen+gungnirNet.CancelOrderMessageHeaderLen)

	binary.BigEndian.PutUint16(buf[0:2], uint16(gungnirNet.CancelOrder))
	binary.BigEndian.PutUint16(buf[2:4], uint16(asset))
	copy(buf[4:20], handle[:])

	_, err := conn.Write(buf)
	return err
}

func sendLog(conn net.Conn) error {
	buf := make([]byte, gungnirNet.BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(gungnirNet.LogBook))
	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and parses Report messages from the server
func readReports(conn net.Conn) {
	for {
		headerBuf := make([]byte, reportFixedHeaderLen)
		_, err := io.ReadFull(conn, headerBuf)
		if err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		msgType := gungnirNet.ReportMessageType(headerBuf[0])
		side := lob.Side(headerBuf[2])

		qty := binary.BigEndian.Uint64(headerBuf[11:19])
		price := math.Float64frombits(binary.BigEndian.Uint64(headerBuf[19:27]))
		counterpartyLen := binary.BigEndian.Uint16(headerBuf[27:29])
		errStrLen := binary.BigEndian.Uint32(headerBuf[29:33])

		var handle uuid.UUID
		copy(handle[:], headerBuf[33:49])

		// Variable-length strings: error first, then counterparty.
		totalVarLen := int(counterpartyLen) + int(errStrLen)
		varBuf := make([]byte, totalVarLen)
		if totalVarLen > 0 {
			if _, err := io.ReadFull(conn, varBuf); err != nil {
				log.Printf("Error reading report body: %v", err)
				break
			}
		}

		errStr := ""
		counterparty := ""
		if errStrLen > 0 {
			errStr = string(varBuf[:errStrLen])
		}
		if counterpartyLen > 0 {
			counterparty = string(varBuf[errStrLen:])
		}

		sideStr := "BUY"
		if side == lob.Sell {
			sideStr = "SELL"
		}

		switch msgType {
		case gungnirNet.ErrorReport:
			fmt.Printf("\n[SERVER ERROR] %s\n", errStr)
		case gungnirNet.OrderAck:
			fmt.Printf("\n[ACK] %s | Qty: %d | Price: %.4f | Handle: %s\n",
				sideStr, qty, price, handle)
		case gungnirNet.CancelAck:
			fmt.Printf("\n[CANCELLED] Handle: %s | Open qty was: %d\n", handle, qty)
		default:
			fmt.Printf("\n[EXECUTION] %s | Qty: %d | Price: %.4f | vs: %s | Handle: %s\n",
				sideStr, qty, price, counterparty, handle)
		}
	}
}
