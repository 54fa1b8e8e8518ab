package accounts

import (
	"context"
	"database/sql"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// GroupStore is the collaborator contract the administration service
// consumes for groups and membership links.
type GroupStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Group, error)
	FindByName(ctx context.Context, name string) (*Group, error)
	ListAll(ctx context.Context) ([]*Group, error)
	EnsureExist(ctx context.Context, ids []uuid.UUID) error
	SetMemberships(ctx context.Context, userID uuid.UUID, groupIDs []uuid.UUID) error
	MembershipsFor(ctx context.Context, userID uuid.UUID) ([]*Group, error)
}

type Groups interface {
	GroupStore

	Create(ctx context.Context, group *Group) (*Group, error)
	CreateTx(ctx context.Context, tx bun.IDB, group *Group) (*Group, error)
	Remove(ctx context.Context, id uuid.UUID) error
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	SetMembershipsTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, groupIDs []uuid.UUID) error
}

type groups struct {
	db *bun.DB
}

var (
	_ Groups     = (*groups)(nil)
	_ GroupStore = (*groups)(nil)
)

func NewGroupsRepository(db *bun.DB) Groups {
	return &groups{db: db}
}

func (g *groups) FindByID(ctx context.Context, id uuid.UUID) (*Group, error) {
	record := &Group{}
	err := g.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (g *groups) FindByName(ctx context.Context, name string) (*Group, error) {
	record := &Group{}
	err := g.db.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"name": name})
		}
		return nil, err
	}

	return record, nil
}

func (g *groups) ListAll(ctx context.Context) ([]*Group, error) {
	records := []*Group{}
	err := g.db.NewSelect().
		Model(&records).
		Order("name ASC").
		Scan(ctx)

	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return records, nil
}

// EnsureExist fails with the missing ids when any of the given group
// ids is unknown.
func (g *groups) EnsureExist(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	found := []uuid.UUID{}
	err := g.db.NewSelect().
		Model((*Group)(nil)).
		Column("id").
		Where("?TableAlias.id IN (?)", bun.In(ids)).
		Scan(ctx, &found)

	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if len(found) == len(ids) {
		return nil
	}

	present := make(map[uuid.UUID]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}

	missing := []string{}
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id.String())
		}
	}

	return groupNotFound(missing...)
}

func (g *groups) Create(ctx context.Context, group *Group) (*Group, error) {
	return g.CreateTx(ctx, g.db, group)
}

func (g *groups) CreateTx(ctx context.Context, tx bun.IDB, group *Group) (*Group, error) {
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}

	if _, err := tx.NewInsert().Model(group).Exec(ctx); err != nil {
		return nil, err
	}

	return group, nil
}

// Remove deletes the group and cascades membership removal.
func (g *groups) Remove(ctx context.Context, id uuid.UUID) error {
	return g.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return g.RemoveTx(ctx, tx, id)
	})
}

func (g *groups) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*GroupMembership)(nil)).
		Where("?TableAlias.group_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*Group)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

// SetMemberships replaces the full membership set for the user with
// exactly groupIDs. Full replace, not a diff: no observer sees a
// partial set.
func (g *groups) SetMemberships(ctx context.Context, userID uuid.UUID, groupIDs []uuid.UUID) error {
	return g.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return g.SetMembershipsTx(ctx, tx, userID, groupIDs)
	})
}

func (g *groups) SetMembershipsTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, groupIDs []uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*GroupMembership)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx); err != nil {
		return err
	}

	if len(groupIDs) == 0 {
		return nil
	}

	memberships := make([]*GroupMembership, 0, len(groupIDs))
	seen := make(map[uuid.UUID]struct{}, len(groupIDs))
	for _, groupID := range groupIDs {
		// Set semantics: collapse duplicates in the request.
		if _, ok := seen[groupID]; ok {
			continue
		}
		seen[groupID] = struct{}{}
		memberships = append(memberships, &GroupMembership{
			UserID:  userID,
			GroupID: groupID,
		})
	}

	_, err := tx.NewInsert().Model(&memberships).Exec(ctx)
	return err
}

func (g *groups) MembershipsFor(ctx context.Context, userID uuid.UUID) ([]*Group, error) {
	records := []*Group{}

	err := g.db.NewSelect().
		Model(&records).
		Join(`JOIN group_memberships AS gm ON gm.group_id = ?TableAlias.id`).
		Where("gm.user_id = ?", userID).
		Order("name ASC").
		Scan(ctx)

	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return records, nil
}
