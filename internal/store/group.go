package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/cipherlog/internal/dbx"
	"github.com/matheus3301/cipherlog/internal/protocol"
)

// GroupState is the lifecycle state of a group.
type GroupState int

const (
	GroupActive GroupState = iota
	GroupAwaitingSync
	GroupDeleted
)

func (s GroupState) String() string {
	switch s {
	case GroupAwaitingSync:
		return "AWAITING_SYNC"
	case GroupDeleted:
		return "DELETED"
	default:
		return "ACTIVE"
	}
}

// Group is a snapshot of a group record. Deleted groups keep their fields.
type Group struct {
	ID           protocol.GroupID
	Title        string
	Description  string
	ImageID      string
	Members      []protocol.ContactID
	AwaitingSync bool
	Deleted      bool
	CreatedAt    time.Time
}

// State derives the lifecycle state from the flags.
func (g *Group) State() GroupState {
	switch {
	case g.Deleted:
		return GroupDeleted
	case g.AwaitingSync:
		return GroupAwaitingSync
	default:
		return GroupActive
	}
}

// HasMember reports whether id is in the member set.
func (g *Group) HasMember(id protocol.ContactID) bool {
	return slices.Contains(g.Members, id)
}

func normalizeMembers(members []protocol.ContactID) []protocol.ContactID {
	out := slices.Clone(members)
	slices.Sort(out)
	return slices.Compact(out)
}

const groupColumns = `creator, seq, title, description, image_id, members, is_awaiting_sync, is_deleted, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(r rowScanner) (*Group, error) {
	var (
		g       Group
		creator string
		seq     int64
		image   sql.NullString
		members string
		created int64
	)
	if err := r.Scan(&creator, &seq, &g.Title, &g.Description, &image, &members, &g.AwaitingSync, &g.Deleted, &created); err != nil {
		return nil, err
	}
	g.ID = protocol.GroupID{Creator: protocol.ContactID(creator), Seq: uint64(seq)}
	g.ImageID = image.String
	g.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(members), &g.Members); err != nil {
		return nil, fmt.Errorf("decode members of %s: %w", g.ID, err)
	}
	return &g, nil
}

func loadGroup(ctx context.Context, q dbx.DBTX, id protocol.GroupID) (*Group, error) {
	row := q.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM chat_groups WHERE creator = ? AND seq = ?`,
		string(id.Creator), int64(id.Seq))
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, unknownGroup(id)
	}
	if err != nil {
		return nil, storageErr("get group", err)
	}
	return g, nil
}

func saveGroup(ctx context.Context, q dbx.DBTX, g *Group) error {
	members, err := json.Marshal(g.Members)
	if err != nil {
		return err
	}
	image := sql.NullString{String: g.ImageID, Valid: g.ImageID != ""}
	_, err = q.ExecContext(ctx, `
		INSERT INTO chat_groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(creator, seq) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			image_id = excluded.image_id,
			members = excluded.members,
			is_awaiting_sync = excluded.is_awaiting_sync,
			is_deleted = excluded.is_deleted`,
		string(g.ID.Creator), int64(g.ID.Seq), g.Title, g.Description, image, string(members),
		boolInt(g.AwaitingSync), boolInt(g.Deleted), toMillis(g.CreatedAt))
	if err != nil {
		return storageErr("save group", err)
	}
	return nil
}

// setMembers replaces the member set and re-derives the lifecycle flags: a
// group without self is tombstoned.
func (db *DB) setMembers(g *Group, members []protocol.ContactID, awaitingSync bool) {
	g.Members = normalizeMembers(members)
	g.Deleted = !g.HasMember(db.SelfContact())
	g.AwaitingSync = awaitingSync && !g.Deleted
}

// createGroup inserts a new group. The creator and all members must be known.
func (db *DB) createGroup(ctx context.Context, tx dbx.DBTX, id protocol.GroupID, members []protocol.ContactID, awaitingSync bool) (*Group, error) {
	if err := requireContacts(ctx, tx, id.Creator); err != nil {
		return nil, err
	}
	if err := requireContacts(ctx, tx, members...); err != nil {
		return nil, err
	}
	g := &Group{ID: id, CreatedAt: db.now()}
	db.setMembers(g, members, awaitingSync)
	if err := saveGroup(ctx, tx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// CreateGroup stores a new group. Creating a known group is a no-op.
// A member set without self creates the group already deleted.
func (db *DB) CreateGroup(ctx context.Context, id protocol.GroupID, members []protocol.ContactID, awaitingSync bool) error {
	created := false
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := loadGroup(ctx, tx, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnknownGroup) {
			return err
		}
		created = true
		_, err = db.createGroup(ctx, tx, id, members, awaitingSync)
		return err
	})
	if err != nil {
		return err
	}
	if created {
		db.emitGroup(id)
	}
	return nil
}

// Group returns the record of id in any state.
func (db *DB) Group(ctx context.Context, id protocol.GroupID) (*Group, error) {
	return loadGroup(ctx, db.DB, id)
}

// HasGroup reports whether id is known and not deleted.
func (db *DB) HasGroup(ctx context.Context, id protocol.GroupID) (bool, error) {
	g, err := loadGroup(ctx, db.DB, id)
	if errors.Is(err, ErrUnknownGroup) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !g.Deleted, nil
}

// IsGroupDeleted reports whether id is known and tombstoned. Unknown groups
// are not deleted.
func (db *DB) IsGroupDeleted(ctx context.Context, id protocol.GroupID) (bool, error) {
	g, err := loadGroup(ctx, db.DB, id)
	if errors.Is(err, ErrUnknownGroup) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.Deleted, nil
}

func (db *DB) IsGroupAwaitingSync(ctx context.Context, id protocol.GroupID) (bool, error) {
	g, err := loadGroup(ctx, db.DB, id)
	if err != nil {
		return false, err
	}
	return g.AwaitingSync, nil
}

func (db *DB) GroupState(ctx context.Context, id protocol.GroupID) (GroupState, error) {
	g, err := loadGroup(ctx, db.DB, id)
	if err != nil {
		return 0, err
	}
	return g.State(), nil
}

func (db *DB) GroupTitle(ctx context.Context, id protocol.GroupID) (string, error) {
	g, err := loadGroup(ctx, db.DB, id)
	if err != nil {
		return "", err
	}
	return g.Title, nil
}

func (db *DB) GroupDescription(ctx context.Context, id protocol.GroupID) (string, error) {
	g, err := loadGroup(ctx, db.DB, id)
	if err != nil {
		return "", err
	}
	return g.Description, nil
}

// GroupImage returns the current group image and whether one is set.
func (db *DB) GroupImage(ctx context.Context, id protocol.GroupID) ([]byte, bool, error) {
	var (
		data []byte
		ok   bool
	)
	err := db.read(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		g, err := loadGroup(ctx, tx, id)
		if err != nil {
			return err
		}
		if g.ImageID == "" {
			return nil
		}
		data, err = db.loadMedia(ctx, tx, g.ImageID)
		ok = err == nil
		return err
	})
	return data, ok, err
}

// GroupMembers returns the member set, optionally without self.
func (db *DB) GroupMembers(ctx context.Context, id protocol.GroupID, excludeSelf bool) ([]protocol.ContactID, error) {
	g, err := loadGroup(ctx, db.DB, id)
	if err != nil {
		return nil, err
	}
	if !excludeSelf {
		return g.Members, nil
	}
	self := db.SelfContact()
	return slices.DeleteFunc(g.Members, func(m protocol.ContactID) bool { return m == self }), nil
}

// GroupCount counts all group records, deleted ones included.
func (db *DB) GroupCount(ctx context.Context) (int, error) {
	return db.count(ctx, "chat_groups")
}

// KnownGroupsWithMembersAndTitles returns every group that is not deleted.
func (db *DB) KnownGroupsWithMembersAndTitles(ctx context.Context) ([]*Group, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+groupColumns+` FROM chat_groups WHERE is_deleted = 0 ORDER BY creator, seq`)
	if err != nil {
		return nil, storageErr("list groups", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []*Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, storageErr("scan group", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// KnownGroups lists the ids of groups that are not deleted.
func (db *DB) KnownGroups(ctx context.Context) ([]protocol.GroupID, error) {
	groups, err := db.KnownGroupsWithMembersAndTitles(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]protocol.GroupID, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// GroupsContainingMember lists non-deleted groups that have id as a member.
func (db *DB) GroupsContainingMember(ctx context.Context, id protocol.ContactID) ([]protocol.GroupID, error) {
	ok, err := db.HasContact(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, unknownContact(id)
	}
	groups, err := db.KnownGroupsWithMembersAndTitles(ctx)
	if err != nil {
		return nil, err
	}
	var ids []protocol.GroupID
	for _, g := range groups {
		if g.HasMember(id) {
			ids = append(ids, g.ID)
		}
	}
	return ids, nil
}
