package db

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrUnsavedTarget indicates an ordering bug: a preference can be persisted
// only after the skin record it references got its storage id
var ErrUnsavedTarget = errors.New("the preference references a skin record that hasn't been saved yet")

const SlimModel = "slim"

type SkinTexture struct {
	Url string
	// Slim reports the "slim" (Alex) arms model. The classic (Steve) model has no metadata at all
	Slim bool
}

type CapeTexture struct {
	Url string
}

// Record is an immutable signed textures payload issued by the upstream.
// The storage id is the only value that can change after the construction and only once
type Record struct {
	timestamp   int64
	profileId   uuid.UUID
	profileName string
	skin        *SkinTexture
	cape        *CapeTexture

	encodedValue string
	signature    string

	mu sync.Mutex
	id int64
}

// NewRecord builds a record from its parts, e.g. from a storage row.
// The encoded value is generated in the canonical form
func NewRecord(
	id int64,
	timestamp int64,
	profileId uuid.UUID,
	profileName string,
	skin *SkinTexture,
	cape *CapeTexture,
	signature string,
) *Record {
	r := &Record{
		id:          id,
		timestamp:   timestamp,
		profileId:   profileId,
		profileName: profileName,
		skin:        cloneSkin(skin),
		cape:        cloneCape(cape),
		signature:   signature,
	}
	r.encodedValue = encodeTextures(r)

	return r
}

func (r *Record) Id() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.id
}

func (r *Record) IsSaved() bool {
	return r.Id() != 0
}

// AssignId runs the insert function under the record's lock unless the record already has an id.
// Concurrent calls for the same record are serialized, so the insert happens at most once
// as long as it succeeds. Returns the final id
func (r *Record) AssignId(insert func() (int64, error)) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.id != 0 {
		return r.id, nil
	}

	id, err := insert()
	if err != nil {
		return 0, err
	}

	if id <= 0 {
		return 0, errors.New("storage returned an invalid id")
	}

	r.id = id

	return id, nil
}

// Timestamp returns the moment in ms when the upstream issued the payload
func (r *Record) Timestamp() int64 {
	return r.timestamp
}

func (r *Record) ProfileId() uuid.UUID {
	return r.profileId
}

func (r *Record) ProfileName() string {
	return r.profileName
}

func (r *Record) Skin() *SkinTexture {
	return cloneSkin(r.skin)
}

func (r *Record) Cape() *CapeTexture {
	return cloneCape(r.cape)
}

// EncodedValue returns the base64 value exactly as it must be forwarded to the clients,
// since the signature is valid only for these bytes
func (r *Record) EncodedValue() string {
	return r.encodedValue
}

func (r *Record) Signature() string {
	return r.signature
}

// String takes the record's lock, so the record can be formatted while it's being saved
func (r *Record) String() string {
	return fmt.Sprintf("Record{id: %d, owner: %s, timestamp: %d}", r.Id(), r.profileId, r.timestamp)
}

// Equal compares the payloads structurally, ignoring the storage id
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}

	if r.timestamp != other.timestamp ||
		r.profileId != other.profileId ||
		r.profileName != other.profileName ||
		r.signature != other.signature {
		return false
	}

	if (r.skin == nil) != (other.skin == nil) || (r.skin != nil && *r.skin != *other.skin) {
		return false
	}

	if (r.cape == nil) != (other.cape == nil) || (r.cape != nil && *r.cape != *other.cape) {
		return false
	}

	return true
}

// Preference holds player's choice of the skin. Id equal to 0 means there is no storage row yet
type Preference struct {
	playerId uuid.UUID

	mu       sync.Mutex
	id       int64
	target   *Record
	keepSkin bool
}

// NewPreference creates a preference for a player that has no storage row yet
func NewPreference(playerId uuid.UUID) *Preference {
	return &Preference{playerId: playerId}
}

func LoadedPreference(id int64, playerId uuid.UUID, target *Record, keepSkin bool) *Preference {
	return &Preference{
		id:       id,
		playerId: playerId,
		target:   target,
		keepSkin: keepSkin,
	}
}

func (p *Preference) PlayerId() uuid.UUID {
	return p.playerId
}

func (p *Preference) Id() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.id
}

func (p *Preference) IsSaved() bool {
	return p.Id() != 0
}

func (p *Preference) TargetSkin() *Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.target
}

func (p *Preference) SetTargetSkin(target *Record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.target = target
}

func (p *Preference) KeepSkin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.keepSkin
}

func (p *Preference) SetKeepSkin(keepSkin bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keepSkin = keepSkin
}

func (p *Preference) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	targetId := int64(0)
	if p.target != nil {
		targetId = p.target.Id()
	}

	return fmt.Sprintf("Preference{id: %d, player: %s, target: %d, keepSkin: %t}", p.id, p.playerId, targetId, p.keepSkin)
}

// PreferenceState is a consistent snapshot of the preference passed to the storage
type PreferenceState struct {
	Id       int64
	PlayerId uuid.UUID
	Target   *Record
	KeepSkin bool
}

// Save passes the snapshot of the preference to the storage function while holding the preference's lock,
// so two saves of the same preference never interleave. A positive id returned by the function
// is assigned to the preference
func (p *Preference) Save(fn func(state PreferenceState) (int64, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.target != nil && !p.target.IsSaved() {
		return ErrUnsavedTarget
	}

	id, err := fn(PreferenceState{
		Id:       p.id,
		PlayerId: p.playerId,
		Target:   p.target,
		KeepSkin: p.keepSkin,
	})
	if err != nil {
		return err
	}

	if id > 0 {
		p.id = id
	}

	return nil
}

func cloneSkin(s *SkinTexture) *SkinTexture {
	if s == nil {
		return nil
	}

	c := *s

	return &c
}

func cloneCape(c *CapeTexture) *CapeTexture {
	if c == nil {
		return nil
	}

	r := *c

	return &r
}
