package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/roommatch/internal/dependencies/clock"
	"github.com/mcoot/roommatch/internal/dependencies/random"
	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/services/directory"
	"github.com/mcoot/roommatch/internal/storage"
)

// Config holds matchmaking settings
type Config struct {
	// GameDuration is how long a started game runs before GAME_ENDED fires
	GameDuration time.Duration
	// OperationTimeout bounds each public operation, storage calls included
	OperationTimeout time.Duration
	// JoinAttempts is the number of rooms tried before a join fails
	JoinAttempts int
	// SweepInterval is how often RunSweeper sweeps expired rooms
	SweepInterval time.Duration
}

// DefaultConfig returns the reference deployment settings
func DefaultConfig() Config {
	return Config{
		GameDuration:     120 * time.Second,
		OperationTimeout: 5 * time.Second,
		JoinAttempts:     2,
		SweepInterval:    time.Minute,
	}
}

// JoinResult is the outcome of a successful Join
type JoinResult struct {
	Room *model.Room
	// AlreadyMember is true when the player was already in the room
	AlreadyMember bool
	// BecameReady is true when this join filled the room
	BecameReady bool
}

// StartResult is the outcome of a successful StartGame
type StartResult struct {
	RoomID    model.RoomID
	StartTime time.Time
	EndsAt    time.Time
}

var (
	errNotMember    = errors.New("player not in room roster")
	errGameNotEnded = errors.New("game not started or already ended")
)

// Service orchestrates joins, leaves, game starts and expiry
type Service struct {
	directory *directory.Directory
	index     storage.PlayerIndex
	notifier  Notifier
	status    StatusReader
	clock     clock.Clock
	random    random.Random
	cfg       Config
	logger    *slog.Logger

	locks  playerLocks
	timers *gameTimers
}

// New creates a Service. status may be nil, in which case room status is
// projected from the directory.
func New(
	dir *directory.Directory,
	index storage.PlayerIndex,
	notifier Notifier,
	status StatusReader,
	clock clock.Clock,
	random random.Random,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.JoinAttempts <= 0 {
		cfg.JoinAttempts = 1
	}
	return &Service{
		directory: dir,
		index:     index,
		notifier:  notifier,
		status:    status,
		clock:     clock,
		random:    random,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "matchmaking")),
		timers:    newGameTimers(clock),
	}
}

// Config returns the service settings
func (s *Service) Config() Config {
	return s.cfg
}

// Join places the player in the oldest room with space, creating one if
// needed. Joining again while already in a room returns that room.
func (s *Service) Join(ctx context.Context, displayName string, playerID model.PlayerID) (*JoinResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	player, err := model.NewPlayer(displayName, playerID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(playerID)
	defer unlock()

	current, err := s.memberRoom(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		// Republish so a retried join heals a failed earlier write
		if err := s.publishJoin(ctx, current, playerID, false); err != nil {
			return nil, err
		}
		return &JoinResult{Room: current, AlreadyMember: true}, nil
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.JoinAttempts; attempt++ {
		candidate, err := s.directory.FindOrCreateRoom(ctx)
		if err != nil {
			return nil, err
		}

		room, becameReady, err := s.admit(ctx, candidate.ID, player)
		switch {
		case err == nil:
			return s.completeJoin(ctx, room, player, becameReady)

		case errors.Is(err, model.ErrAlreadyInRoom):
			room, err := s.directory.GetRoom(ctx, candidate.ID)
			if err != nil {
				return nil, err
			}
			return s.completeJoin(ctx, room, player, false)

		case errors.Is(err, model.ErrRoomFull),
			errors.Is(err, model.ErrRoomAlreadyStarted),
			errors.Is(err, model.ErrRoomClosed),
			errors.Is(err, model.ErrRoomNotFound):
			lastErr = err
			s.logger.Debug("join lost race for room",
				slog.String("player_id", string(playerID)),
				slog.String("room_id", string(candidate.ID)),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)

		default:
			return nil, err
		}
	}

	s.logger.Warn("join failed",
		slog.String("player_id", string(playerID)),
		slog.String("error", lastErr.Error()),
	)
	return nil, fmt.Errorf("%w: %w", model.ErrJoinFailed, lastErr)
}

// admit adds the player to the room and reports whether this filled it
func (s *Service) admit(ctx context.Context, roomID model.RoomID, player model.Player) (*model.Room, bool, error) {
	var becameReady bool
	room, err := s.directory.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		becameReady = false
		if err := r.AddPlayer(player); err != nil {
			return err
		}
		if r.IsReady() && r.ReadyAt == nil {
			now := s.clock.Now()
			r.ReadyAt = &now
			becameReady = true
		}
		return nil
	})
	return room, becameReady, err
}

func (s *Service) completeJoin(ctx context.Context, room *model.Room, player model.Player, becameReady bool) (*JoinResult, error) {
	if err := s.index.SetPlayerRoom(ctx, player.ID, room.ID); err != nil {
		s.rollbackJoin(room.ID, player.ID)
		return nil, err
	}
	if err := s.publishJoin(ctx, room, player.ID, becameReady); err != nil {
		s.rollbackJoin(room.ID, player.ID)
		return nil, err
	}

	s.logger.Info("player joined room",
		slog.String("player_id", string(player.ID)),
		slog.String("room_id", string(room.ID)),
		slog.Int("player_count", len(room.Players)),
		slog.Int("max_players", room.MaxPlayers),
	)
	if becameReady {
		s.logger.Info("room ready", slog.String("room_id", string(room.ID)))
	}
	return &JoinResult{Room: room, BecameReady: becameReady}, nil
}

// rollbackJoin undoes an admission whose follow-up writes failed, so a
// failed Join never leaves the player behind in the room
func (s *Service) rollbackJoin(roomID model.RoomID, playerID model.PlayerID) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout())
	defer cancel()

	logger := s.logger.With(
		slog.String("player_id", string(playerID)),
		slog.String("room_id", string(roomID)),
	)

	room, err := s.directory.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if !r.RemovePlayer(playerID) {
			return errNotMember
		}
		releaseRoom(r)
		return nil
	})
	if err != nil && !errors.Is(err, errNotMember) && !errors.Is(err, model.ErrRoomNotFound) {
		logger.Error("failed to roll back join", slog.String("error", err.Error()))
		return
	}
	if err := s.index.ClearPlayerRoom(ctx, playerID, roomID); err != nil {
		logger.Error("failed to clear player index during rollback", slog.String("error", err.Error()))
	}
	if room == nil {
		return
	}

	if room.IsEmpty() {
		if err := s.directory.DeleteRoom(ctx, roomID); err != nil {
			logger.Error("failed to delete room during rollback", slog.String("error", err.Error()))
		}
		return
	}
	if err := s.publish(ctx, s.newEvent(model.EventRoomUpdated, room, room.PlayerIDs(), nil)); err != nil {
		logger.Warn("failed to publish rolled back roster", slog.String("error", err.Error()))
	}
}

func (s *Service) publishJoin(ctx context.Context, room *model.Room, joiner model.PlayerID, becameReady bool) error {
	events := []model.Event{
		s.newEvent(model.EventRoomJoined, room, []model.PlayerID{joiner}, nil),
		s.newEvent(model.EventRoomUpdated, room, room.PlayerIDs(), nil),
	}
	if becameReady {
		events = append(events, s.newEvent(model.EventRoomReady, room, room.PlayerIDs(),
			model.RoomReadyPayload{Message: model.RoomReadyMessage}))
	}
	return s.publish(ctx, events...)
}

// Leave removes the player from their current room. Leaving while not in a
// room is a no-op.
func (s *Service) Leave(ctx context.Context, playerID model.PlayerID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock := s.locks.lock(playerID)
	defer unlock()

	roomID, err := s.index.GetPlayerRoom(ctx, playerID)
	if errors.Is(err, model.ErrNotInRoom) {
		return nil
	}
	if err != nil {
		return err
	}

	room, err := s.directory.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if !r.RemovePlayer(playerID) {
			return errNotMember
		}
		releaseRoom(r)
		return nil
	})

	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		// Already gone; make sure pollers stop seeing it
		if err := s.publish(ctx, s.newEvent(model.EventRoomClosed, &model.Room{ID: roomID}, nil,
			model.RoomClosedPayload{Reason: model.CloseReasonEmpty})); err != nil {
			return err
		}
		return s.index.ClearPlayerRoom(ctx, playerID, roomID)

	case errors.Is(err, errNotMember):
		// Removed by an earlier attempt whose follow-up failed
		room, err = s.directory.GetRoom(ctx, roomID)
		if errors.Is(err, model.ErrRoomNotFound) {
			return s.index.ClearPlayerRoom(ctx, playerID, roomID)
		}
		if err != nil {
			return err
		}

	case err != nil:
		return err
	}

	if err := s.afterRemoval(ctx, room); err != nil {
		return err
	}
	if err := s.index.ClearPlayerRoom(ctx, playerID, roomID); err != nil {
		return err
	}

	s.logger.Info("player left room",
		slog.String("player_id", string(playerID)),
		slog.String("room_id", string(roomID)),
		slog.Int("player_count", len(room.Players)),
	)
	return nil
}

// releaseRoom updates lifecycle flags after a player is removed
func releaseRoom(r *model.Room) {
	if !r.IsFull() {
		r.ReadyAt = nil
	}
	if r.IsEmpty() {
		r.Close()
	}
}

// afterRemoval notifies remaining members, or deletes the room once empty
func (s *Service) afterRemoval(ctx context.Context, room *model.Room) error {
	if !room.IsEmpty() {
		return s.publish(ctx, s.newEvent(model.EventRoomUpdated, room, room.PlayerIDs(), nil))
	}

	s.timers.cancel(room.ID)
	if err := s.directory.DeleteRoom(ctx, room.ID); err != nil {
		return err
	}
	return s.publish(ctx, s.newEvent(model.EventRoomClosed, room, nil,
		model.RoomClosedPayload{Reason: model.CloseReasonEmpty}))
}

// Disconnect handles a lost push connection as an implicit Leave
func (s *Service) Disconnect(ctx context.Context, playerID model.PlayerID) error {
	s.logger.Info("connection lost", slog.String("player_id", string(playerID)))
	return s.Leave(ctx, playerID)
}

// StartGame starts a full room's game and schedules its end. Starting an
// already started room returns the original start time.
func (s *Service) StartGame(ctx context.Context, roomID model.RoomID) (*StartResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var started bool
	room, err := s.directory.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		started = false
		if r.GameStarted {
			return model.ErrRoomAlreadyStarted
		}
		if !r.IsFull() {
			return fmt.Errorf("%w: %d of %d players", model.ErrRoomNotFull, len(r.Players), r.MaxPlayers)
		}
		now := s.clock.Now()
		r.MarkStarted(now)
		r.ScheduleEnd(now.Add(s.cfg.GameDuration))
		started = true
		return nil
	})
	if errors.Is(err, model.ErrRoomAlreadyStarted) {
		room, err = s.directory.GetRoom(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	result := &StartResult{RoomID: room.ID, StartTime: *room.StartedAt}
	if room.EndsAt != nil {
		result.EndsAt = *room.EndsAt
	} else {
		result.EndsAt = result.StartTime.Add(s.cfg.GameDuration)
	}

	if started {
		s.timers.schedule(room.ID, s.cfg.GameDuration, func() {
			// The entry stays until the end is handled so the sweeper skips it
			defer s.timers.forget(room.ID)
			ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout())
			defer cancel()
			if err := s.endGame(ctx, room.ID); err != nil {
				s.logger.Error("failed to end game",
					slog.String("room_id", string(room.ID)),
					slog.String("error", err.Error()),
				)
			}
		})
		s.logger.Info("game started",
			slog.String("room_id", string(room.ID)),
			slog.Time("start_time", result.StartTime),
			slog.Time("ends_at", result.EndsAt),
		)
	}

	if err := s.publish(ctx, s.newEvent(model.EventGameStarted, room, room.PlayerIDs(),
		model.GameStartedPayload{StartTime: result.StartTime, EndsAt: result.EndsAt})); err != nil {
		return nil, err
	}
	return result, nil
}

// endGame claims the game's end, emits GAME_ENDED and retires the room.
// Only the caller whose claim succeeds publishes, so concurrent enders
// (timer, sweeper, another process) emit GAME_ENDED once.
func (s *Service) endGame(ctx context.Context, roomID model.RoomID) error {
	room, err := s.directory.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if !r.MarkEnded(s.clock.Now()) {
			return errGameNotEnded
		}
		return nil
	})
	if errors.Is(err, model.ErrRoomNotFound) || errors.Is(err, errGameNotEnded) {
		return nil
	}
	if err != nil {
		return err
	}

	// Retire the room even if the announcement fails
	pubErr := s.publish(ctx, s.newEvent(model.EventGameEnded, room, room.PlayerIDs(),
		model.GameEndedPayload{StartTime: *room.StartedAt, EndedAt: *room.EndedAt}))

	for _, id := range room.PlayerIDs() {
		if err := s.index.ClearPlayerRoom(ctx, id, roomID); err != nil {
			return errors.Join(pubErr, err)
		}
	}
	if err := s.directory.DeleteRoom(ctx, roomID); err != nil {
		return errors.Join(pubErr, err)
	}

	s.logger.Info("game ended",
		slog.String("room_id", string(roomID)),
		slog.Int("player_count", len(room.Players)),
	)
	return pubErr
}

// GetRoomStatus returns the room's current status. It never mutates state.
func (s *Service) GetRoomStatus(ctx context.Context, roomID model.RoomID) (*model.RoomStatus, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if s.status != nil {
		return s.status.RoomStatus(ctx, roomID)
	}

	room, err := s.directory.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	status := room.Status()
	status.UpdatedAt = s.clock.Now()
	return &status, nil
}

// CurrentRoom returns the room the player is in, or model.ErrNotInRoom
func (s *Service) CurrentRoom(ctx context.Context, playerID model.PlayerID) (*model.Room, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	room, err := s.memberRoom(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, model.ErrNotInRoom
	}
	return room, nil
}

// memberRoom resolves the player index, returning nil when the player is
// not in a live room. Stale index entries are cleared.
func (s *Service) memberRoom(ctx context.Context, playerID model.PlayerID) (*model.Room, error) {
	roomID, err := s.index.GetPlayerRoom(ctx, playerID)
	if errors.Is(err, model.ErrNotInRoom) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	room, err := s.directory.GetRoom(ctx, roomID)
	if err != nil && !errors.Is(err, model.ErrRoomNotFound) {
		return nil, err
	}
	if err == nil && room.HasPlayer(playerID) {
		return room, nil
	}

	if err := s.index.ClearPlayerRoom(ctx, playerID, roomID); err != nil {
		return nil, err
	}
	return nil, nil
}

// SweepExpired removes expired rooms, notifies evicted members and ends
// games whose timer was lost (for example after a restart)
func (s *Service) SweepExpired(ctx context.Context) ([]directory.SweptRoom, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.clock.Now()
	swept, err := s.directory.SweepExpired(ctx, now)
	for _, sr := range swept {
		s.timers.cancel(sr.Room.ID)

		reason := model.CloseReasonEmpty
		if sr.Evicted {
			reason = model.CloseReasonExpired
		}
		for _, id := range sr.Room.PlayerIDs() {
			if err := s.index.ClearPlayerRoom(ctx, id, sr.Room.ID); err != nil {
				s.logger.Warn("failed to clear evicted player",
					slog.String("player_id", string(id)),
					slog.String("error", err.Error()),
				)
			}
		}
		if err := s.publish(ctx, s.newEvent(model.EventRoomClosed, sr.Room, sr.Room.PlayerIDs(),
			model.RoomClosedPayload{Reason: reason})); err != nil {
			s.logger.Warn("failed to publish room closed",
				slog.String("room_id", string(sr.Room.ID)),
				slog.String("error", err.Error()),
			)
		}
	}
	if err != nil {
		return swept, err
	}

	rooms, err := s.directory.ListRooms(ctx)
	if err != nil {
		return swept, err
	}
	for _, room := range rooms {
		if !room.GameStarted || room.EndedAt != nil || room.EndsAt == nil || now.Before(*room.EndsAt) || s.timers.has(room.ID) {
			continue
		}
		if err := s.endGame(ctx, room.ID); err != nil {
			return swept, err
		}
	}
	return swept, nil
}

// RunSweeper sweeps on every interval until ctx is cancelled
func (s *Service) RunSweeper(ctx context.Context) error {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("room sweeper started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("room sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				s.logger.Error("room sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Close cancels all pending game timers
func (s *Service) Close() {
	s.timers.stopAll()
}

func (s *Service) newEvent(eventType model.EventType, room *model.Room, recipients []model.PlayerID, payload any) model.Event {
	return model.Event{
		ID:         s.random.UUID(),
		Type:       eventType,
		RoomID:     room.ID,
		Recipients: recipients,
		Room:       room,
		Timestamp:  s.clock.Now(),
		Payload:    payload,
	}
}

func (s *Service) publish(ctx context.Context, events ...model.Event) error {
	for _, ev := range events {
		if err := s.notifier.Publish(ctx, ev); err != nil {
			return fmt.Errorf("publishing %s for room %s: %w", ev.Type, ev.RoomID, err)
		}
	}
	return nil
}

func (s *Service) opTimeout() time.Duration {
	if s.cfg.OperationTimeout > 0 {
		return s.cfg.OperationTimeout
	}
	return DefaultConfig().OperationTimeout
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout())
}
