package socket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/mcoot/roommatch/internal/api/apierr"
	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/notify/push"
)

var errPeerClosed = errors.New("peer closed connection")

// session is one WebSocket connection. Reads happen on the run goroutine,
// writes on writeLoop; control replies share the same write lock.
type session struct {
	h      *Handler
	id     string
	conn   net.Conn
	reader *wsutil.Reader
	logger *slog.Logger

	writeMu sync.Mutex
	send    chan push.Frame

	ctx    context.Context
	cancel context.CancelFunc

	// client is set by the first JOIN_REAL_MATCH and never changes
	clientMu sync.Mutex
	client   *push.Client
	bound    chan struct{}
}

func newSession(h *Handler, conn net.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	id := h.random.UUID()
	s := &session{
		h:      h,
		id:     id,
		conn:   conn,
		logger: h.logger.With(slog.String("session_id", id)),
		send:   make(chan push.Frame, push.SendBufferSize),
		ctx:    ctx,
		cancel: cancel,
		bound:  make(chan struct{}),
	}
	s.reader = &wsutil.Reader{
		Source:         conn,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: s.handleControl,
	}
	return s
}

func (s *session) run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()
	go func() {
		defer wg.Done()
		s.watchSuperseded()
	}()

	err := s.readLoop()
	s.cancel()
	_ = s.conn.Close()
	wg.Wait()

	s.logger.Info("websocket disconnected", slog.String("reason", errString(err)))
	s.disconnect()
}

func (s *session) readLoop() error {
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.h.cfg.HeartbeatTimeout)); err != nil {
			return err
		}
		data, err := s.readMessage()
		if err != nil {
			return err
		}

		var frame push.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.replyError(apierr.NewInvalidRequestError("Malformed message"))
			continue
		}
		s.dispatch(frame)
	}
}

// readMessage returns the next text or binary message, answering control
// frames along the way
func (s *session) readMessage() ([]byte, error) {
	for {
		hdr, err := s.reader.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := s.handleControl(hdr, s.reader); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := s.reader.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(s.reader)
	}
}

func (s *session) handleControl(hdr ws.Header, r io.Reader) error {
	payload := make([]byte, hdr.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	switch hdr.OpCode {
	case ws.OpPing:
		return s.writeFrame(ws.NewPongFrame(payload))
	case ws.OpClose:
		_ = s.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
		return errPeerClosed
	}
	return nil
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.send:
			data, err := json.Marshal(frame)
			if err != nil {
				s.logger.Error("failed to encode frame",
					slog.String("type", frame.Type),
					slog.String("error", err.Error()))
				continue
			}
			if err := s.writeFrame(ws.NewTextFrame(data)); err != nil {
				s.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *session) writeFrame(f ws.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.h.cfg.WriteTimeout)); err != nil {
		return err
	}
	return ws.WriteFrame(s.conn, f)
}

// watchSuperseded closes the connection when a newer one takes over the player
func (s *session) watchSuperseded() {
	select {
	case <-s.ctx.Done():
		return
	case <-s.bound:
	}
	select {
	case <-s.ctx.Done():
	case <-s.currentClient().Superseded():
		s.logger.Info("websocket superseded by a newer connection")
		_ = s.conn.Close()
	}
}

func (s *session) dispatch(frame push.Frame) {
	switch frame.Type {
	case MsgJoinRealMatch:
		var data JoinRealMatchData
		if err := decodeData(frame.Data, &data); err != nil {
			s.replyError(apierr.NewInvalidRequestError("Malformed JOIN_REAL_MATCH data"))
			return
		}
		s.join(data)
	case MsgLeaveRoom:
		s.leave()
	case MsgStartGame:
		var data StartGameData
		if err := decodeData(frame.Data, &data); err != nil {
			s.replyError(apierr.NewInvalidRequestError("Malformed START_GAME data"))
			return
		}
		s.startGame(model.RoomID(data.RoomID))
	case MsgPing:
		s.reply(push.FramePong, nil)
	default:
		s.replyError(apierr.NewInvalidRequestError("Unknown message type"))
	}
}

func (s *session) join(data JoinRealMatchData) {
	data.normalize()
	if data.Username == "" || data.Address == "" {
		s.replyError(apierr.NewInvalidRequestError("username and address are required"))
		return
	}

	playerID := model.PlayerID(data.Address)
	client := s.currentClient()
	if client != nil && client.PlayerID() != playerID {
		s.replyError(apierr.NewInvalidRequestError("Connection is bound to another player"))
		return
	}
	if client == nil {
		// Register before joining so the join's own events reach this connection
		s.bind(playerID)
	}

	_, err := s.h.service.Join(s.ctx, data.Username, playerID)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrJoinFailed):
		s.reply(string(model.EventJoinFailed), push.MessageData{Message: push.JoinFailedMessage})
	default:
		s.replyError(err)
	}
}

func (s *session) leave() {
	client := s.currentClient()
	if client != nil {
		if err := s.h.service.Leave(s.ctx, client.PlayerID()); err != nil {
			s.replyError(err)
			return
		}
	}
	s.reply(push.FrameRoomLeft, nil)
}

func (s *session) startGame(requested model.RoomID) {
	client := s.currentClient()
	if client == nil {
		s.replyError(model.ErrNotInRoom)
		return
	}
	room, err := s.h.service.CurrentRoom(s.ctx, client.PlayerID())
	if err != nil {
		s.replyError(err)
		return
	}
	if requested != "" && requested != room.ID {
		s.replyError(model.ErrNotInRoom)
		return
	}
	if _, err := s.h.service.StartGame(s.ctx, room.ID); err != nil {
		s.replyError(err)
	}
}

func (s *session) bind(playerID model.PlayerID) {
	client := push.NewClient(s.id, playerID, s.send, s.h.clock.Now())
	s.clientMu.Lock()
	s.client = client
	s.clientMu.Unlock()
	s.h.registry.Register(client)
	close(s.bound)
}

func (s *session) currentClient() *push.Client {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	return s.client
}

// disconnect treats a dropped connection as a leave, unless a newer
// connection already took over the player
func (s *session) disconnect() {
	client := s.currentClient()
	if client == nil || !s.h.registry.Unregister(client) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.h.cfg.DisconnectTimeout)
	defer cancel()
	if err := s.h.service.Disconnect(ctx, client.PlayerID()); err != nil {
		s.logger.Error("failed to release player after disconnect",
			slog.String("player_id", string(client.PlayerID())),
			slog.String("error", err.Error()))
	}
}

func (s *session) reply(frameType string, data any) {
	frame, err := push.NewFrame(frameType, data)
	if err != nil {
		s.logger.Error("failed to encode reply", slog.String("type", frameType), slog.String("error", err.Error()))
		return
	}
	select {
	case s.send <- frame:
	default:
		s.logger.Warn("reply dropped - send buffer full", slog.String("type", frameType))
	}
}

func (s *session) replyError(err error) {
	_, apiErr := apierr.Resolve(err)
	if apiErr.Code == apierr.CodeInternalError {
		s.logger.Error("request failed", slog.String("error", err.Error()))
	}
	s.reply(push.FrameError, push.ErrorData{Code: apiErr.Code, Message: apiErr.Message})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
