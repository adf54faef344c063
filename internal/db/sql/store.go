package sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ely.by/changeskin/internal/db"
	"ely.by/changeskin/internal/utils"
)

// Store persists the skin records and the players preferences.
// Records are deduplicated by their storage id, so the same record can be saved by many preferences
type Store struct {
	conn    *gorm.DB
	dialect string
}

func New(conn *gorm.DB) *Store {
	return &Store{
		conn:    conn,
		dialect: conn.Dialector.Name(),
	}
}

// GetPreference always returns a usable preference: when the player has no row yet,
// a fresh preference without an id is returned
func (s *Store) GetPreference(ctx context.Context, playerId uuid.UUID) (*db.Preference, error) {
	var row preferenceRow
	err := s.conn.WithContext(ctx).
		Joins("Skin").
		Where(&preferenceRow{UUID: utils.MojangId(playerId)}).
		Take(&row).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.NewPreference(playerId), nil
	}

	if err != nil {
		return nil, fmt.Errorf("unable to query the preference of %s: %w", playerId, err)
	}

	var target *db.Record
	if row.Skin != nil && row.Skin.SkinID != 0 {
		target, err = rowToRecord(row.Skin)
		if err != nil {
			return nil, err
		}
	}

	return db.LoadedPreference(row.UserID, playerId, target, row.KeepSkin), nil
}

// GetRecord returns nil without an error when there is no record with such id
func (s *Store) GetRecord(ctx context.Context, skinId int64) (*db.Record, error) {
	if skinId <= 0 {
		return nil, nil
	}

	var row skinRow
	err := s.conn.WithContext(ctx).Where(&skinRow{SkinID: skinId}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("unable to query the skin %d: %w", skinId, err)
	}

	return rowToRecord(&row)
}

// GetRecordByOwner returns the latest record of the account or nil
func (s *Store) GetRecordByOwner(ctx context.Context, owner uuid.UUID) (*db.Record, error) {
	var row skinRow
	err := s.conn.WithContext(ctx).
		Where(&skinRow{UUID: utils.MojangId(owner)}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "Timestamp"}, Desc: true}).
		Take(&row).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("unable to query the skin of %s: %w", owner, err)
	}

	return rowToRecord(&row)
}

// SaveRecord inserts the record unless it already has an id. The id is assigned under the record's lock,
// so concurrent saves of the same record produce a single row. Returns false only when the storage failed
func (s *Store) SaveRecord(ctx context.Context, record *db.Record) bool {
	if record == nil {
		return false
	}

	_, err := record.AssignId(func() (int64, error) {
		row, err := recordToRow(record)
		if err != nil {
			return 0, err
		}

		err = s.conn.WithContext(ctx).Create(row).Error
		if err != nil {
			return 0, err
		}

		return row.SkinID, nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Unable to save the skin record",
			slog.String("owner", record.ProfileId().String()),
			slog.Int64("timestamp", record.Timestamp()),
			slog.Any("error", err),
		)

		return false
	}

	return true
}

// SavePreference returns db.ErrUnsavedTarget without touching the storage when the target record has no id yet
func (s *Store) SavePreference(ctx context.Context, pref *db.Preference) error {
	err := pref.Save(func(state db.PreferenceState) (int64, error) {
		var targetId *int64
		if state.Target != nil {
			id := state.Target.Id()
			targetId = &id
		}

		if state.Id != 0 {
			return 0, s.conn.WithContext(ctx).
				Model(&preferenceRow{UserID: state.Id}).
				Updates(map[string]any{
					"TargetSkin": targetId,
					"KeepSkin":   state.KeepSkin,
				}).
				Error
		}

		// Don't create rows holding nothing but the defaults
		if targetId == nil && !state.KeepSkin {
			return 0, nil
		}

		row := &preferenceRow{
			UUID:       utils.MojangId(state.PlayerId),
			TargetSkin: targetId,
			KeepSkin:   state.KeepSkin,
		}
		// Another copy of the same preference could have inserted the row since this one was loaded.
		// The latest save wins in that case
		conn := s.conn.WithContext(ctx)
		err := conn.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "UUID"}},
				DoUpdates: clause.AssignmentColumns([]string{"TargetSkin", "KeepSkin"}),
			}).
			Create(row).
			Error
		if err != nil {
			return 0, err
		}

		// The id reported for an updated row differs between the dialects, so read the actual one
		var stored preferenceRow
		err = conn.Select("UserID").Where(&preferenceRow{UUID: row.UUID}).Take(&stored).Error
		if err != nil {
			return 0, err
		}

		return stored.UserID, nil
	})
	if err != nil && !errors.Is(err, db.ErrUnsavedTarget) {
		slog.ErrorContext(ctx, "Unable to save the preference",
			slog.String("player", pref.PlayerId().String()),
			slog.Any("error", err),
		)
	}

	return err
}

func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.conn.DB()
	if err != nil {
		return err
	}

	return conn.PingContext(ctx)
}

func (s *Store) Close() error {
	conn, err := s.conn.DB()
	if err != nil {
		return err
	}

	return conn.Close()
}
