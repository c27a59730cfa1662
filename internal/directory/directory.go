package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"facilityfix/internal/domain"
	"facilityfix/internal/store"
)

// ErrUnknownActor indicates the actor id has no profile.
var ErrUnknownActor = errors.New("unknown actor")

// Resolver is the identity and role port the workflows consume. It answers
// one question: who is this actor and what role do they hold.
type Resolver interface {
	ResolveProfile(ctx context.Context, actorID string) (domain.UserProfile, error)
}

// StaffIDPrefix is the id shape convention for staff accounts; job services
// may only be assigned to ids carrying it.
const StaffIDPrefix = "S-"

// RolePrefix returns the user-id prefix for a role (T-, S-, A-).
func RolePrefix(role string) string {
	switch role {
	case domain.RoleTenant:
		return "T-"
	case domain.RoleStaff:
		return StaffIDPrefix
	case domain.RoleAdmin:
		return "A-"
	}
	return ""
}

// HasStaffPrefix reports whether id follows the staff id convention.
func HasStaffPrefix(id string) bool {
	return strings.HasPrefix(id, StaffIDPrefix)
}

// FormatID renders the n-th id for a role, e.g. S-0001.
func FormatID(role string, n int) string {
	return fmt.Sprintf("%s%04d", RolePrefix(role), n)
}

var buildingUnitPattern = regexp.MustCompile(`^([ABC])-(\d{1,5})$`)

// NormalizeBuildingUnit canonicalizes a tenant building unit to the A-00010
// form: buildings A/B/C, unit number zero-padded to five digits.
func NormalizeBuildingUnit(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	m := buildingUnitPattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("building unit %q must match A-00010 (buildings A/B/C)", raw)
	}
	num, err := strconv.Atoi(m[2])
	if err != nil {
		return "", fmt.Errorf("building unit %q: %w", raw, err)
	}
	return fmt.Sprintf("%s-%05d", m[1], num), nil
}

// DisplayName renders a profile's human-readable name.
func DisplayName(p domain.UserProfile) string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.ID
	}
	return name
}

// Service resolves profiles out of the document store and owns profile
// creation glue. The workflows only see the Resolver interface.
type Service struct {
	Store store.Store
	Now   func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) ResolveProfile(ctx context.Context, actorID string) (domain.UserProfile, error) {
	doc, err := s.Store.Get(ctx, store.CollectionUserProfiles, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.UserProfile{}, fmt.Errorf("%w: %s", ErrUnknownActor, actorID)
		}
		return domain.UserProfile{}, err
	}
	var p domain.UserProfile
	if err := store.Decode(doc, &p); err != nil {
		return domain.UserProfile{}, err
	}
	return p, nil
}

// CreateProfile stores a new profile, assigning the next sequential id for
// the role when p.ID is empty and normalizing tenant building units.
func (s Service) CreateProfile(ctx context.Context, p domain.UserProfile) (domain.UserProfile, error) {
	switch p.Role {
	case domain.RoleAdmin, domain.RoleStaff, domain.RoleTenant:
	default:
		return domain.UserProfile{}, fmt.Errorf("unknown role %q", p.Role)
	}
	if p.Role == domain.RoleTenant && p.BuildingUnit != "" {
		unit, err := NormalizeBuildingUnit(p.BuildingUnit)
		if err != nil {
			return domain.UserProfile{}, err
		}
		p.BuildingUnit = unit
	}
	if p.ID == "" {
		existing, err := s.Store.Query(ctx, store.CollectionUserProfiles, []store.Filter{store.Eq("role", p.Role)})
		if err != nil {
			return domain.UserProfile{}, err
		}
		// Max over existing suffixes, not a count: an explicitly seeded
		// out-of-sequence id must not make the next auto-assign collide.
		prefix := RolePrefix(p.Role)
		max := 0
		for _, doc := range existing {
			id, _ := doc["id"].(string)
			n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
			if err == nil && strings.HasPrefix(id, prefix) && n > max {
				max = n
			}
		}
		p.ID = FormatID(p.Role, max+1)
	}
	p.CreatedAt = s.now().UTC().Format(time.RFC3339)
	doc, err := store.Encode(p)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if _, err := s.Store.Create(ctx, store.CollectionUserProfiles, p.ID, doc); err != nil {
		return domain.UserProfile{}, err
	}
	return p, nil
}

// ListProfiles returns profiles, optionally filtered by role.
func (s Service) ListProfiles(ctx context.Context, role string) ([]domain.UserProfile, error) {
	var (
		docs []map[string]any
		err  error
	)
	if role == "" {
		docs, err = s.Store.GetAll(ctx, store.CollectionUserProfiles)
	} else {
		docs, err = s.Store.Query(ctx, store.CollectionUserProfiles, []store.Filter{store.Eq("role", role)})
	}
	if err != nil {
		return nil, err
	}
	profiles := make([]domain.UserProfile, 0, len(docs))
	for _, doc := range docs {
		var p domain.UserProfile
		if err := store.Decode(doc, &p); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
