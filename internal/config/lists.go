package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/google/uuid"

	"github.com/roach88/listflow/internal/model"
	"github.com/roach88/listflow/internal/store"
)

//go:embed schema.cue
var schemaSource string

// Error codes for list definition failures.
const (
	ErrCodeNotFound = "E001"
	ErrCodeCompile  = "E002"
	ErrCodeSchema   = "E003"
	ErrCodeDecode   = "E004"
)

// LoadError reports a list definition failure, with a CUE position when
// one is available.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newLoadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: err.Error()}
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// ListDef is one mailing list as written in a definitions file.
type ListDef struct {
	PostingAddress     string   `json:"posting_address"`
	DisplayName        string   `json:"display_name"`
	SubscriptionPolicy string   `json:"subscription_policy"`
	AdminImmedNotify   bool     `json:"admin_immed_notify"`
	Owners             []string `json:"owners"`
	Moderators         []string `json:"moderators"`
	Bans               []string `json:"bans"`
}

// Lists is a decoded definitions file.
type Lists struct {
	Lists      map[string]ListDef `json:"lists"`
	GlobalBans []string           `json:"global_bans"`
}

// IDs returns the list IDs in sorted order.
func (l *Lists) IDs() []string {
	ids := make([]string, 0, len(l.Lists))
	for id := range l.Lists {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MailingList converts the definition of id into a model.MailingList.
func (l *Lists) MailingList(id string) (model.MailingList, error) {
	def, ok := l.Lists[id]
	if !ok {
		return model.MailingList{}, fmt.Errorf("list %q is not defined", id)
	}
	policy, err := model.ParsePolicy(def.SubscriptionPolicy)
	if err != nil {
		return model.MailingList{}, fmt.Errorf("list %s: %w", id, err)
	}
	name := def.DisplayName
	if name == "" {
		name, _, _ = strings.Cut(def.PostingAddress, "@")
	}
	return model.MailingList{
		ListID:             id,
		PostingAddress:     def.PostingAddress,
		DisplayName:        name,
		SubscriptionPolicy: policy,
		AdminImmedNotify:   def.AdminImmedNotify,
	}, nil
}

// LoadListsFile reads and validates a CUE definitions file.
func LoadListsFile(path string) (*Lists, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("list definitions not found: %s", path)}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseLists(path, src)
}

// ParseLists validates src against the embedded schema and decodes it.
// filename is used in error positions.
func ParseLists(filename string, src []byte) (*Lists, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, newLoadError(ErrCodeCompile, err)
	}

	value := schema.Unify(data)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, newLoadError(ErrCodeSchema, err)
	}

	var out Lists
	if err := value.Decode(&out); err != nil {
		return nil, newLoadError(ErrCodeDecode, err)
	}
	for _, id := range out.IDs() {
		if _, err := out.MailingList(id); err != nil {
			return nil, &LoadError{Code: ErrCodeSchema, Message: err.Error()}
		}
	}
	return &out, nil
}

// ApplyStore is the subset of *store.Store that Apply writes through.
type ApplyStore interface {
	PutList(ctx context.Context, l model.MailingList) error
	CreateAddress(ctx context.Context, a model.Address) error
	GetAddress(ctx context.Context, email string) (*model.Address, error)
	AddMember(ctx context.Context, m model.Member) error
	AddBan(ctx context.Context, b model.Ban) error
}

// ApplyResult counts applied entries. Roles counts only newly added roles.
type ApplyResult struct {
	Lists int `json:"lists"`
	Roles int `json:"roles"`
	Bans  int `json:"bans"`
}

// Apply upserts every list, its owner and moderator rosters, and all bans.
// Existing roles and bans are left in place, so Apply is idempotent.
func Apply(ctx context.Context, s ApplyStore, defs *Lists, now time.Time) (ApplyResult, error) {
	var res ApplyResult
	for _, id := range defs.IDs() {
		l, err := defs.MailingList(id)
		if err != nil {
			return res, err
		}
		if err := s.PutList(ctx, l); err != nil {
			return res, err
		}
		res.Lists++

		def := defs.Lists[id]
		for _, role := range []struct {
			role   model.MemberRole
			emails []string
		}{
			{model.RoleOwner, def.Owners},
			{model.RoleModerator, def.Moderators},
		} {
			for _, email := range role.emails {
				added, err := addRole(ctx, s, id, email, role.role, now)
				if err != nil {
					return res, err
				}
				if added {
					res.Roles++
				}
			}
		}

		for _, entry := range def.Bans {
			if err := s.AddBan(ctx, banEntry(id, entry)); err != nil {
				return res, err
			}
			res.Bans++
		}
	}

	for _, entry := range defs.GlobalBans {
		if err := s.AddBan(ctx, banEntry("", entry)); err != nil {
			return res, err
		}
		res.Bans++
	}
	return res, nil
}

func addRole(ctx context.Context, s ApplyStore, listID, email string, role model.MemberRole, now time.Time) (bool, error) {
	addr, err := s.GetAddress(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		a := model.Address{Email: email, RegisteredOn: now}
		if err := s.CreateAddress(ctx, a); err != nil {
			return false, err
		}
		addr = &a
	} else if err != nil {
		return false, err
	}

	m := model.Member{
		ID:           uuid.New(),
		ListID:       listID,
		Email:        email,
		Role:         role,
		SubscribedBy: model.SubscriberAddress,
		SubscribedOn: now,
	}
	if addr.UserID != nil {
		m.UserID = *addr.UserID
	}
	err = s.AddMember(ctx, m)
	if errors.Is(err, store.ErrConflict) {
		return false, nil
	}
	return err == nil, err
}

func banEntry(listID, entry string) model.Ban {
	b := model.Ban{ListID: listID, Email: entry}
	if !b.IsPattern() {
		b.Email = model.NormalizeEmail(entry)
	}
	return b
}
