// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// --- Open / Close tests ---

func TestOpen_ClosedTransport(t *testing.T) {
	ft := newFakeTransport()
	require.NoError(t, ft.Close())

	_, err := Open(ft)
	assert.ErrorIs(t, err, ErrInterfaceNotOpen)

	_, err = Open(nil)
	assert.ErrorIs(t, err, ErrInterfaceNotOpen)
}

func TestClose_CompletesPendingRequests(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithReceiveTimeout(5*time.Second))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.SendCommand(context.Background(), "NI", nil, 0)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(time.Second):
		t.Fatal("pending command not completed by Close")
	}
	assert.False(t, c.IsOpen())
	assert.Equal(t, 0, c.Pending())
}

func TestReaderEOF_FailsPendingRequests(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithReceiveTimeout(5*time.Second))
	ft.setOnWrite(func([]byte) { ft.hangUp() })

	_, err := c.SendCommand(context.Background(), "NI", nil, 0)
	assert.ErrorIs(t, err, ErrTransportClosed)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("connection did not finish after EOF")
	}
	assert.False(t, c.IsOpen())

	_, err = c.SendCommand(context.Background(), "NI", nil, 0)
	assert.ErrorIs(t, err, ErrInterfaceNotOpen)
}

// --- SendCommand tests ---

func TestSendCommand_ReturnsValue(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)
	ft.respond(xbee.ModeAPI, answerAT(func(name string, _ []byte) (xbee.ATCommandStatus, []byte) {
		return xbee.ATStatusOK, []byte("Yoda")
	}))

	resp, err := c.SendCommand(context.Background(), "ni", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "NI", resp.Command)
	assert.Equal(t, []byte("Yoda"), resp.Value)

	frames := writtenFrames(t, ft, xbee.ModeAPI)
	require.Len(t, frames, 1)
	assert.Equal(t, xbee.FrameATCommand, frames[0].Type())
	assert.Equal(t, uint8(1), frames[0].ID())
	assert.Equal(t, []byte("NI"), frames[0].Payload())
	assert.Equal(t, 0, c.Pending())
}

func TestSendCommand_Timeout(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)

	start := time.Now()
	_, err := c.SendCommand(context.Background(), "NI", []byte("Yoda"), 50*time.Millisecond)
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 400*time.Millisecond)
	assert.Equal(t, 0, c.Pending())

	frames := writtenFrames(t, ft, xbee.ModeAPI)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("NIYoda"), frames[0].Payload())
}

func TestSendCommand_ContextCancelled(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithReceiveTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.SendCommand(ctx, "NI", nil, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Pending())
}

func TestSendCommand_Rejected(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)
	ft.respond(xbee.ModeAPI, answerAT(func(string, []byte) (xbee.ATCommandStatus, []byte) {
		return xbee.ATStatusInvalidParameter, nil
	}))

	_, err := c.SendCommand(context.Background(), "CH", []byte{0xFF}, 0)
	var rejected *CommandRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "CH", rejected.Command)
	assert.Equal(t, xbee.ATStatusInvalidParameter, rejected.Status)
}

func TestSendCommand_InvalidNameWritesNothing(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)

	_, err := c.SendCommand(context.Background(), "N", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidParameterName)

	_, err = c.SendCommand(context.Background(), "NIX", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidParameterName)

	_, err = c.SendCommand(context.Background(), "", nil, 0)
	assert.ErrorIs(t, err, ErrNullArgument)

	assert.Empty(t, ft.written())
	assert.Equal(t, 0, c.Pending())
}

func TestSendCommand_NameCheckedBeforeTransport(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)
	require.NoError(t, ft.Close())

	_, err := c.SendCommand(context.Background(), "N", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidParameterName)

	_, err = c.SendCommand(context.Background(), "NI", nil, 0)
	assert.ErrorIs(t, err, ErrInterfaceNotOpen)
}

func TestSendCommand_WrongMode(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithOperatingMode(xbee.ModeTransparentAT))

	_, err := c.SendCommand(context.Background(), "NI", nil, 0)
	var modeErr *ModeError
	require.ErrorAs(t, err, &modeErr)
	assert.Equal(t, xbee.ModeTransparentAT, modeErr.Mode)
	assert.Empty(t, ft.written())
}

func TestSendCommand_MissingStatus(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)
	ft.respond(xbee.ModeAPI, func(req *xbee.Frame) []*xbee.Frame {
		return []*xbee.Frame{xbee.NewFrame(xbee.FrameATCommandResponse, req.ID(), []byte("NI"))}
	})

	_, err := c.SendCommand(context.Background(), "NI", nil, 0)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestSendCommand_WriteFailure(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)
	ft.setWriteErr(errors.New("device gone"))

	_, err := c.SendCommand(context.Background(), "NI", nil, 0)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "write", transportErr.Op)
	assert.Equal(t, 0, c.Pending())
}

func TestSendCommand_EscapedMode(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithOperatingMode(xbee.ModeAPIEscaped))
	value := []byte{0x7E, 0x7D, 0x11, 0x13, 0x00}
	ft.respond(xbee.ModeAPIEscaped, answerAT(func(string, []byte) (xbee.ATCommandStatus, []byte) {
		return xbee.ATStatusOK, value
	}))

	resp, err := c.SendCommand(context.Background(), "DL", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, value, resp.Value)
}

func TestSendCommand_SettingAPChangesMode(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)
	ft.respond(xbee.ModeAPI, answerAT(func(string, []byte) (xbee.ATCommandStatus, []byte) {
		return xbee.ATStatusOK, nil
	}))

	_, err := c.SendCommand(context.Background(), "AP", []byte{2}, 0)
	require.NoError(t, err)
	assert.Equal(t, xbee.ModeAPIEscaped, c.Mode())
}

func TestSendCommand_Concurrent(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithReceiveTimeout(2*time.Second))
	ft.respond(xbee.ModeAPI, func(req *xbee.Frame) []*xbee.Frame {
		name, value, err := xbee.ParseATCommand(req)
		if err != nil {
			return nil
		}
		return []*xbee.Frame{xbee.BuildATCommandResponse(req.ID(), name, xbee.ATStatusOK, value)}
	})

	const workers = 32
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := []byte(fmt.Sprintf("v%02d", i))
			resp, err := c.SendCommand(context.Background(), "NI", want, 0)
			if err == nil && !bytes.Equal(resp.Value, want) {
				err = fmt.Errorf("worker %d got %q", i, resp.Value)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 0, c.Pending())
}

func TestSendCommand_OutOfOrderResponses(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithReceiveTimeout(2*time.Second))

	var mu sync.Mutex
	var held []*xbee.Frame
	ft.respond(xbee.ModeAPI, func(req *xbee.Frame) []*xbee.Frame {
		name, _, _ := xbee.ParseATCommand(req)
		mu.Lock()
		defer mu.Unlock()
		held = append(held, xbee.BuildATCommandResponse(req.ID(), name, xbee.ATStatusOK, []byte(name)))
		if len(held) < 2 {
			return nil
		}
		return []*xbee.Frame{held[1], held[0]}
	})

	var wg sync.WaitGroup
	results := make(map[string][]byte)
	var resMu sync.Mutex
	for _, name := range []string{"SH", "SL"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			resp, err := c.SendCommand(context.Background(), name, nil, 0)
			if assert.NoError(t, err) {
				resMu.Lock()
				results[name] = resp.Value
				resMu.Unlock()
			}
		}(name)
	}
	wg.Wait()

	assert.Equal(t, []byte("SH"), results["SH"])
	assert.Equal(t, []byte("SL"), results["SL"])
}

func TestParameterHelpers(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)

	stored := map[string][]byte{"ID": {0x33, 0x32}}
	var mu sync.Mutex
	ft.respond(xbee.ModeAPI, answerAT(func(name string, value []byte) (xbee.ATCommandStatus, []byte) {
		mu.Lock()
		defer mu.Unlock()
		if len(value) > 0 {
			stored[name] = value
			return xbee.ATStatusOK, nil
		}
		return xbee.ATStatusOK, stored[name]
	}))

	ctx := context.Background()
	v, err := c.GetParameter(ctx, "ID")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x33, 0x32}, v)

	require.NoError(t, c.SetParameter(ctx, "ID", []byte{0x01}))
	v, err = c.GetParameter(ctx, "ID")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, v)

	assert.ErrorIs(t, c.SetParameter(ctx, "ID", nil), ErrNullArgument)
	assert.ErrorIs(t, c.SetParameter(ctx, "I", nil), ErrInvalidParameterName)
	assert.NoError(t, c.ExecuteParameter(ctx, "WR"))
}

// --- Remote AT command tests ---

func TestSendRemoteATCommand(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithProtocol(xbee.ProtocolZigBee))
	remote64 := xbee.Address64(0x0013A20040A1B2C3)

	ft.respond(xbee.ModeAPI, func(req *xbee.Frame) []*xbee.Frame {
		if req.Type() != xbee.FrameRemoteATCommand {
			return nil
		}
		p := req.Payload()
		payload := append([]byte{}, p[0:10]...)
		payload = append(payload, p[11], p[12], byte(xbee.ATStatusOK), 'R', '2')
		return []*xbee.Frame{xbee.NewFrame(xbee.FrameRemoteATResponse, req.ID(), payload)}
	})

	dev, err := c.Registry().FindOrCreate(remote64, xbee.Some16(0x1234), "")
	require.NoError(t, err)

	resp, err := c.SendRemoteATCommand(context.Background(), dev, "NI", nil, true, 0)
	require.NoError(t, err)
	assert.True(t, resp.Remote)
	assert.Equal(t, remote64, resp.Source64)
	assert.Equal(t, []byte("R2"), resp.Value)

	frames := writtenFrames(t, ft, xbee.ModeAPI)
	require.Len(t, frames, 1)
	p := frames[0].Payload()
	assert.Equal(t, remote64.Bytes(), p[0:8])
	assert.Equal(t, []byte{0x12, 0x34}, p[8:10])
	assert.Equal(t, uint8(xbee.RemoteATOptionApplyChanges), p[10])
}

func TestSendRemoteATCommand_InvalidArguments(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)

	_, err := c.SendRemoteATCommand(context.Background(), nil, "NI", nil, false, 0)
	assert.ErrorIs(t, err, ErrNullArgument)

	dev, err := c.Registry().FindOrCreate(0x0013A20040000001, xbee.No16(), "")
	require.NoError(t, err)
	_, err = c.SendRemoteATCommand(context.Background(), dev, "1", nil, false, 0)
	assert.ErrorIs(t, err, ErrInvalidParameterName)
	assert.Empty(t, ft.written())
}

// --- Data transmission tests ---

func transmitResponder(delivery xbee.DeliveryStatus) func(req *xbee.Frame) []*xbee.Frame {
	return func(req *xbee.Frame) []*xbee.Frame {
		switch req.Type() {
		case xbee.FrameTransmitRequest:
			return []*xbee.Frame{xbee.BuildTransmitStatus(req.ID(), 0x1234, 0, delivery, 0)}
		case xbee.FrameTx64Request, xbee.FrameTx16Request:
			return []*xbee.Frame{xbee.NewFrame(xbee.FrameTxStatus, req.ID(), []byte{byte(delivery)})}
		}
		return nil
	}
}

func TestSendData_Delivered(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithProtocol(xbee.ProtocolZigBee))
	ft.respond(xbee.ModeAPI, transmitResponder(xbee.DeliverySuccess))

	dev, err := c.Registry().FindOrCreate(0x0013A20040A1B2C3, xbee.No16(), "")
	require.NoError(t, err)
	require.NoError(t, c.SendData(context.Background(), dev, []byte("hello")))

	frames := writtenFrames(t, ft, xbee.ModeAPI)
	require.Len(t, frames, 1)
	assert.Equal(t, xbee.FrameTransmitRequest, frames[0].Type())
	p := frames[0].Payload()
	assert.Equal(t, xbee.Unknown16.Bytes(), p[8:10])
	assert.Equal(t, []byte("hello"), p[12:])
}

func TestSendData_DeliveryFailure(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithProtocol(xbee.ProtocolZigBee))
	ft.respond(xbee.ModeAPI, transmitResponder(xbee.DeliveryAddressNotFound))

	err := c.SendDataTo(context.Background(), 0x0013A20040A1B2C3, xbee.No16(), []byte("x"))
	var txErr *TransmitError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, xbee.DeliveryAddressNotFound, txErr.Status)
}

func TestSendData_LegacyFamily(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithProtocol(xbee.ProtocolRaw802154))
	ft.respond(xbee.ModeAPI, transmitResponder(xbee.DeliverySuccess))

	ctx := context.Background()
	require.NoError(t, c.SendDataTo(ctx, xbee.Unknown64, xbee.Some16(0x0042), []byte("a")))
	require.NoError(t, c.SendDataTo(ctx, 0x0013A20040A1B2C3, xbee.No16(), []byte("b")))

	frames := writtenFrames(t, ft, xbee.ModeAPI)
	require.Len(t, frames, 2)
	assert.Equal(t, xbee.FrameTx16Request, frames[0].Type())
	assert.Equal(t, xbee.FrameTx64Request, frames[1].Type())
}

func TestSendData_InvalidArguments(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithProtocol(xbee.ProtocolZigBee))
	ctx := context.Background()

	assert.ErrorIs(t, c.SendDataTo(ctx, 0x0013A20040A1B2C3, xbee.No16(), nil), ErrNullArgument)
	assert.ErrorIs(t, c.SendDataTo(ctx, xbee.Unknown64, xbee.Some16(0x0042), []byte("x")), xbee.ErrInvalidAddressing)
	assert.ErrorIs(t, c.SendData(ctx, nil, []byte("x")), ErrNullArgument)
	assert.Empty(t, ft.written())
}

func TestSendBroadcastData(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)
	ft.respond(xbee.ModeAPI, transmitResponder(xbee.DeliverySuccess))

	require.NoError(t, c.SendBroadcastData(context.Background(), []byte("all")))

	frames := writtenFrames(t, ft, xbee.ModeAPI)
	require.Len(t, frames, 1)
	p := frames[0].Payload()
	assert.Equal(t, xbee.Broadcast64.Bytes(), p[0:8])
	assert.Equal(t, xbee.Unknown16.Bytes(), p[8:10])
}

func TestSendDataAsync_UsesFrameIDZero(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithProtocol(xbee.ProtocolZigBee))

	dev, err := c.Registry().FindOrCreate(0x0013A20040A1B2C3, xbee.No16(), "")
	require.NoError(t, err)
	require.NoError(t, c.SendDataAsync(context.Background(), dev, []byte("x")))

	frames := writtenFrames(t, ft, xbee.ModeAPI)
	require.Len(t, frames, 1)
	assert.Equal(t, uint8(0), frames[0].ID())
	assert.Equal(t, 0, c.Pending())
}

// --- Discovery tests ---

func discoveryResponder(nodes ...*xbee.NodeInfo) func(req *xbee.Frame) []*xbee.Frame {
	return func(req *xbee.Frame) []*xbee.Frame {
		name, value, err := xbee.ParseATCommand(req)
		if err != nil || name != "ND" {
			return nil
		}
		var out []*xbee.Frame
		for _, n := range nodes {
			if len(value) > 0 && n.NodeID != string(value) {
				continue
			}
			v := xbee.BuildNodeDiscoveryValue(n, xbee.ProtocolZigBee)
			out = append(out, xbee.BuildATCommandResponse(req.ID(), "ND", xbee.ATStatusOK, v))
		}
		return out
	}
}

func TestDiscover(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithProtocol(xbee.ProtocolZigBee))
	ft.respond(xbee.ModeAPI, discoveryResponder(
		&xbee.NodeInfo{Addr64: 0x0013A20040000002, Addr16: xbee.Some16(0x2222), NodeID: "B", DeviceType: xbee.DeviceRouter},
		&xbee.NodeInfo{Addr64: 0x0013A20040000001, Addr16: xbee.Some16(0x1111), NodeID: "A", DeviceType: xbee.DeviceEndDevice},
	))

	devices, err := c.Discover(context.Background(), 150*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	require.Equal(t, 2, c.Registry().Len())
	listed := c.Registry().Devices()
	assert.Equal(t, "A", listed[0].NodeID())
	assert.Equal(t, xbee.DeviceEndDevice, listed[0].DeviceType())
	assert.Equal(t, "B", listed[1].NodeID())
	assert.Equal(t, 0, c.Pending())
}

func TestDiscover_EmptyResponseEndsWindow(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithProtocol(xbee.ProtocolZigBee))
	ft.respond(xbee.ModeAPI, func(req *xbee.Frame) []*xbee.Frame {
		node := &xbee.NodeInfo{Addr64: 0x0013A20040000001, Addr16: xbee.Some16(0x1111), NodeID: "A"}
		return []*xbee.Frame{
			xbee.BuildATCommandResponse(req.ID(), "ND", xbee.ATStatusOK, xbee.BuildNodeDiscoveryValue(node, xbee.ProtocolZigBee)),
			xbee.BuildATCommandResponse(req.ID(), "ND", xbee.ATStatusOK, nil),
		}
	})

	start := time.Now()
	devices, err := c.Discover(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDiscoverNode(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithProtocol(xbee.ProtocolZigBee))
	ft.respond(xbee.ModeAPI, discoveryResponder(
		&xbee.NodeInfo{Addr64: 0x0013A20040000001, Addr16: xbee.Some16(0x1111), NodeID: "Yoda"},
	))

	dev, err := c.DiscoverNode(context.Background(), "Yoda", 150*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, xbee.Address64(0x0013A20040000001), dev.Addr64())

	_, err = c.DiscoverNode(context.Background(), "Vader", 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

// --- Mode probing tests ---

func TestProbeMode_API(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithOperatingMode(xbee.ModeUnknown), WithProbeTimeout(100*time.Millisecond))
	ft.respond(xbee.ModeAPI, answerAT(func(string, []byte) (xbee.ATCommandStatus, []byte) {
		return xbee.ATStatusOK, []byte{1}
	}))

	mode, err := c.ProbeMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, xbee.ModeAPI, mode)
	assert.Equal(t, xbee.ModeAPI, c.Mode())
}

func TestProbeMode_APIEscaped(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithOperatingMode(xbee.ModeUnknown), WithProbeTimeout(50*time.Millisecond))

	var mu sync.Mutex
	writes := 0
	ft.setOnWrite(func(b []byte) {
		mu.Lock()
		writes++
		n := writes
		mu.Unlock()
		if n != 2 {
			return
		}
		frames, _ := xbee.Decode(b, xbee.ModeAPIEscaped)
		for _, req := range frames {
			ft.injectFrame(t, xbee.BuildATCommandResponse(req.ID(), "AP", xbee.ATStatusOK, []byte{2}), xbee.ModeAPIEscaped)
		}
	})

	mode, err := c.ProbeMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, xbee.ModeAPIEscaped, mode)
	assert.Equal(t, xbee.ModeAPIEscaped, c.Mode())
}

func TestProbeMode_TransparentAT(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft,
		WithOperatingMode(xbee.ModeUnknown),
		WithProbeTimeout(50*time.Millisecond),
		WithGuardTime(10*time.Millisecond),
	)
	ft.setOnWrite(func(b []byte) {
		if string(b) == "+++" {
			ft.inject([]byte("OK\r"))
		}
	})

	mode, err := c.ProbeMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, xbee.ModeTransparentAT, mode)
	assert.Equal(t, xbee.ModeTransparentAT, c.Mode())

	writes := ft.written()
	assert.Equal(t, []byte("ATCN\r"), writes[len(writes)-1])

	_, err = c.SendCommand(context.Background(), "NI", nil, 0)
	var modeErr *ModeError
	assert.ErrorAs(t, err, &modeErr)
}

func TestProbeMode_Undetermined(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft,
		WithOperatingMode(xbee.ModeUnknown),
		WithProbeTimeout(30*time.Millisecond),
		WithGuardTime(10*time.Millisecond),
	)

	mode, err := c.ProbeMode(context.Background())
	assert.ErrorIs(t, err, ErrModeUndetermined)
	assert.Equal(t, xbee.ModeUnknown, mode)
	assert.Equal(t, xbee.ModeUnknown, c.Mode())
}

// --- Inbound routing tests ---

func TestUnsolicitedFramesReachStatusListeners(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)

	var got collector[*xbee.Frame]
	c.AddStatusListener(func(f *xbee.Frame) error {
		got.add(f)
		return nil
	})

	ft.injectFrame(t, xbee.BuildModemStatus(xbee.ModemJoinedNetwork), xbee.ModeAPI)
	ft.injectFrame(t, xbee.BuildATCommandResponse(0x42, "NI", xbee.ATStatusOK, nil), xbee.ModeAPI)

	require.Eventually(t, func() bool { return got.len() == 2 }, time.Second, 5*time.Millisecond)
	frames := got.get()
	assert.Equal(t, xbee.FrameModemStatus, frames[0].Type())
	assert.Equal(t, uint8(0x42), frames[1].ID())
}

func TestReceivedDataReachesDataListeners(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft, WithProtocol(xbee.ProtocolZigBee))

	var got collector[*XBeeMessage]
	c.AddDataListener(func(*XBeeMessage) error { return errors.New("first listener fails") })
	c.AddDataListener(func(m *XBeeMessage) error {
		got.add(m)
		return nil
	})

	src := xbee.Address64(0x0013A20040A1B2C3)
	ft.injectFrame(t, xbee.BuildReceivePacket(src, 0x5678, xbee.ReceiveOptionBroadcast, []byte("hi")), xbee.ModeAPI)

	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)
	msg := got.get()[0]
	assert.Equal(t, []byte("hi"), msg.Data())
	assert.True(t, msg.IsBroadcast())
	assert.Equal(t, src, msg.Device().Addr64())

	dev, ok := c.Registry().Lookup64(src)
	require.True(t, ok)
	assert.Same(t, dev, msg.Device())
}

func TestDecodeErrorsAreRecovered(t *testing.T) {
	ft := newFakeTransport()

	var decodeErrs collector[error]
	c := openTestConn(t, ft, WithDecodeErrorHandler(func(err error) { decodeErrs.add(err) }))

	var got collector[*xbee.Frame]
	c.AddStatusListener(func(f *xbee.Frame) error {
		got.add(f)
		return nil
	})

	bad, err := xbee.Encode(xbee.BuildModemStatus(xbee.ModemHardwareReset), xbee.ModeAPI)
	require.NoError(t, err)
	bad[len(bad)-1] ^= 0xFF

	ft.inject([]byte{0x00, 0x01, 0x02})
	ft.inject(bad)
	ft.injectFrame(t, xbee.BuildModemStatus(xbee.ModemCoordinatorStarted), xbee.ModeAPI)

	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)
	status, err := xbee.ParseModemStatus(got.get()[0])
	require.NoError(t, err)
	assert.Equal(t, xbee.ModemCoordinatorStarted, status)

	require.Equal(t, 1, decodeErrs.len())
	assert.ErrorIs(t, decodeErrs.get()[0], xbee.ErrChecksum)

	stats := c.Statistics()
	assert.Equal(t, uint64(1), stats.ChecksumErrors)
	assert.Equal(t, uint64(8), stats.SkippedBytes)
}

func TestFrameListenerSeesResponses(t *testing.T) {
	ft := newFakeTransport()
	c := openTestConn(t, ft)
	ft.respond(xbee.ModeAPI, answerAT(func(string, []byte) (xbee.ATCommandStatus, []byte) {
		return xbee.ATStatusOK, nil
	}))

	var got collector[*xbee.Frame]
	id := c.AddFrameListener(func(f *xbee.Frame) error {
		got.add(f)
		return nil
	})

	_, err := c.SendCommand(context.Background(), "WR", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.len())

	assert.True(t, c.RemoveFrameListener(id))
	assert.False(t, c.RemoveFrameListener(id))
}

type recordedFrame struct {
	dir Direction
	typ xbee.FrameType
}

type testRecorder struct {
	collector[recordedFrame]
}

func (r *testRecorder) Record(dir Direction, f *xbee.Frame, _ []byte) error {
	r.add(recordedFrame{dir: dir, typ: f.Type()})
	return nil
}

func TestRecorderSeesBothDirections(t *testing.T) {
	ft := newFakeTransport()
	rec := &testRecorder{}
	c := openTestConn(t, ft, WithRecorder(rec))
	ft.respond(xbee.ModeAPI, answerAT(func(string, []byte) (xbee.ATCommandStatus, []byte) {
		return xbee.ATStatusOK, nil
	}))

	_, err := c.SendCommand(context.Background(), "WR", nil, 0)
	require.NoError(t, err)

	assert.ElementsMatch(t, []recordedFrame{
		{dir: DirectionOut, typ: xbee.FrameATCommand},
		{dir: DirectionIn, typ: xbee.FrameATCommandResponse},
	}, rec.get())
}
