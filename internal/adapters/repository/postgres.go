// Package repository implements the host store against a Moodle PostgreSQL
// database.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/corolair/moodle-bridge/internal/core/domain"
)

// pluginName scopes every row the bridge owns in mdl_config_plugins.
const pluginName = "local_corolair"

// capAllow is Moodle's CAP_ALLOW permission value.
const capAllow = 1

// PostgresRepository implements ports.HostStore over the mdl_* tables.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetPluginConfig(ctx context.Context, name string) (string, error) {
	query := `SELECT value FROM mdl_config_plugins WHERE plugin = $1 AND name = $2`
	var value string
	errRow := r.db.QueryRowContext(ctx, query, pluginName, name).Scan(&value)
	if errors.Is(errRow, sql.ErrNoRows) {
		return "", nil
	}
	if errRow != nil {
		return "", errRow
	}
	return value, nil
}

func (r *PostgresRepository) SetPluginConfig(ctx context.Context, name, value string) error {
	query := `INSERT INTO mdl_config_plugins (plugin, name, value) VALUES ($1, $2, $3)
	          ON CONFLICT (plugin, name) DO UPDATE SET value = EXCLUDED.value`
	_, err := r.db.ExecContext(ctx, query, pluginName, name, value)
	return err
}

func (r *PostgresRepository) DeletePluginConfig(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mdl_config_plugins WHERE plugin = $1`, pluginName)
	return err
}

func (r *PostgresRepository) GetGlobalConfig(ctx context.Context, name string) (string, error) {
	var value string
	errRow := r.db.QueryRowContext(ctx, `SELECT value FROM mdl_config WHERE name = $1`, name).Scan(&value)
	if errors.Is(errRow, sql.ErrNoRows) {
		return "", nil
	}
	if errRow != nil {
		return "", errRow
	}
	return value, nil
}

func (r *PostgresRepository) SetGlobalConfig(ctx context.Context, name, value string) error {
	query := `INSERT INTO mdl_config (name, value) VALUES ($1, $2)
	          ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`
	_, err := r.db.ExecContext(ctx, query, name, value)
	return err
}

func (r *PostgresRepository) GetService(ctx context.Context, shortname string) (*domain.ExternalService, error) {
	query := `SELECT id, name, shortname, enabled, restrictedusers, uploadfiles, downloadfiles, timecreated, timemodified
	          FROM mdl_external_services WHERE shortname = $1`
	var svc domain.ExternalService
	var enabled, restricted, upload, download int
	var created, modified int64
	errRow := r.db.QueryRowContext(ctx, query, shortname).Scan(
		&svc.ID, &svc.Name, &svc.Shortname, &enabled, &restricted, &upload, &download, &created, &modified)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	svc.Enabled = enabled == 1
	svc.RestrictedUsers = restricted == 1
	svc.UploadFiles = upload == 1
	svc.DownloadFiles = download == 1
	svc.TimeCreated = time.Unix(created, 0)
	svc.TimeModified = time.Unix(modified, 0)
	return &svc, nil
}

func (r *PostgresRepository) CreateService(ctx context.Context, svc *domain.ExternalService) (int64, error) {
	query := `INSERT INTO mdl_external_services (name, shortname, enabled, restrictedusers, uploadfiles, downloadfiles, timecreated, timemodified)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		svc.Name, svc.Shortname, boolInt(svc.Enabled), boolInt(svc.RestrictedUsers),
		boolInt(svc.UploadFiles), boolInt(svc.DownloadFiles),
		svc.TimeCreated.Unix(), svc.TimeModified.Unix()).Scan(&svc.ID)
	if err != nil {
		return 0, err
	}
	return svc.ID, nil
}

// DeleteService removes the service row. Tokens and function bindings go with
// it through the ON DELETE CASCADE constraints.
func (r *PostgresRepository) DeleteService(ctx context.Context, serviceID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mdl_external_services WHERE id = $1`, serviceID)
	return err
}

func (r *PostgresRepository) AddServiceFunction(ctx context.Context, serviceID int64, functionName string) error {
	query := `INSERT INTO mdl_external_services_functions (externalserviceid, functionname) VALUES ($1, $2)`
	_, err := r.db.ExecContext(ctx, query, serviceID, functionName)
	return err
}

func (r *PostgresRepository) ListServiceFunctions(ctx context.Context, serviceID int64) ([]string, error) {
	query := `SELECT functionname FROM mdl_external_services_functions WHERE externalserviceid = $1 ORDER BY id`
	rows, errQuery := r.db.QueryContext(ctx, query, serviceID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if errScan := rows.Scan(&name); errScan != nil {
			return nil, errScan
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *PostgresRepository) CreateToken(ctx context.Context, token *domain.ServiceToken) (int64, error) {
	query := `INSERT INTO mdl_external_tokens (token, privatetoken, tokentype, userid, externalserviceid, contextid, creatorid, name, validuntil, timecreated)
	          VALUES ($1, $2, 0, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		token.Token, token.PrivateToken, token.UserID, token.ServiceID, token.ContextID,
		token.CreatorID, domain.TokenName, token.ValidUntil, token.TimeCreated.Unix()).Scan(&token.ID)
	if err != nil {
		return 0, err
	}
	return token.ID, nil
}

func (r *PostgresRepository) GetTokenByService(ctx context.Context, serviceID int64) (*domain.ServiceToken, error) {
	query := `SELECT id, token, userid, creatorid, contextid, externalserviceid, validuntil, timecreated
	          FROM mdl_external_tokens WHERE externalserviceid = $1 ORDER BY id LIMIT 1`
	var (
		t       domain.ServiceToken
		created int64
	)
	errRow := r.db.QueryRowContext(ctx, query, serviceID).Scan(
		&t.ID, &t.Token, &t.UserID, &t.CreatorID, &t.ContextID, &t.ServiceID, &t.ValidUntil, &created)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	t.TimeCreated = time.Unix(created, 0)
	return &t, nil
}

func (r *PostgresRepository) ListTokensByService(ctx context.Context, serviceID int64) ([]domain.ServiceToken, error) {
	query := `SELECT id, token, userid, creatorid, contextid, externalserviceid, validuntil, timecreated
	          FROM mdl_external_tokens WHERE externalserviceid = $1 ORDER BY id`
	rows, errQuery := r.db.QueryContext(ctx, query, serviceID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer rows.Close()

	var tokens []domain.ServiceToken
	for rows.Next() {
		var (
			t       domain.ServiceToken
			created int64
		)
		if errScan := rows.Scan(&t.ID, &t.Token, &t.UserID, &t.CreatorID, &t.ContextID, &t.ServiceID, &t.ValidUntil, &created); errScan != nil {
			return nil, errScan
		}
		t.TimeCreated = time.Unix(created, 0)
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *PostgresRepository) GetRole(ctx context.Context, shortname string) (*domain.ManagerRole, error) {
	query := `SELECT id, name, shortname, description FROM mdl_role WHERE shortname = $1`
	var role domain.ManagerRole
	errRow := r.db.QueryRowContext(ctx, query, shortname).Scan(&role.ID, &role.Name, &role.Shortname, &role.Description)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return &role, nil
}

func (r *PostgresRepository) CreateRole(ctx context.Context, role *domain.ManagerRole) (int64, error) {
	query := `INSERT INTO mdl_role (name, shortname, description, sortorder)
	          VALUES ($1, $2, $3, (SELECT COALESCE(MAX(sortorder), 0) + 1 FROM mdl_role)) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, role.Name, role.Shortname, role.Description).Scan(&role.ID)
	if err != nil {
		return 0, err
	}
	return role.ID, nil
}

func (r *PostgresRepository) DeleteRole(ctx context.Context, roleID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mdl_role WHERE id = $1`, roleID)
	return err
}

func (r *PostgresRepository) AddRoleContextLevel(ctx context.Context, roleID int64, level domain.ContextLevel) error {
	query := `INSERT INTO mdl_role_context_levels (roleid, contextlevel) VALUES ($1, $2)
	          ON CONFLICT (roleid, contextlevel) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, roleID, int(level))
	return err
}

func (r *PostgresRepository) GrantCapability(ctx context.Context, roleID, contextID int64, capability string) error {
	query := `INSERT INTO mdl_role_capabilities (contextid, roleid, capability, permission) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, contextID, roleID, capability, capAllow)
	return err
}

func (r *PostgresRepository) AssignRole(ctx context.Context, roleID, userID, contextID int64) error {
	query := `INSERT INTO mdl_role_assignments (roleid, contextid, userid) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, roleID, contextID, userID)
	return err
}

func (r *PostgresRepository) SystemContextID(ctx context.Context) (int64, error) {
	var id int64
	query := `SELECT id FROM mdl_context WHERE contextlevel = $1`
	errRow := r.db.QueryRowContext(ctx, query, int(domain.ContextSystem)).Scan(&id)
	if errRow != nil {
		return 0, errRow
	}
	return id, nil
}

func (r *PostgresRepository) FindContextID(ctx context.Context, level domain.ContextLevel, instanceID int64) (int64, error) {
	var id int64
	query := `SELECT id FROM mdl_context WHERE contextlevel = $1 AND instanceid = $2`
	errRow := r.db.QueryRowContext(ctx, query, int(level), instanceID).Scan(&id)
	if errors.Is(errRow, sql.ErrNoRows) {
		return 0, nil
	}
	if errRow != nil {
		return 0, errRow
	}
	return id, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, userID int64) (*domain.Account, error) {
	query := `SELECT id, email, firstname, lastname FROM mdl_user WHERE id = $1`
	var user domain.Account
	errRow := r.db.QueryRowContext(ctx, query, userID).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return &user, nil
}

// HasCapability checks whether any role assigned to the user allows the
// capability. A simplification of Moodle's full accesslib resolution: no
// prohibit/prevent overrides, which the bridge's single capability never uses.
func (r *PostgresRepository) HasCapability(ctx context.Context, userID int64, capability string) (bool, error) {
	query := `SELECT EXISTS (
	            SELECT 1 FROM mdl_role_assignments ra
	            JOIN mdl_role_capabilities rc ON rc.roleid = ra.roleid
	            WHERE ra.userid = $1 AND rc.capability = $2 AND rc.permission = $3)`
	var allowed bool
	if err := r.db.QueryRowContext(ctx, query, userID, capability, capAllow).Scan(&allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

func (r *PostgresRepository) UserRoleInCourse(ctx context.Context, userID, courseID int64) (string, error) {
	query := `SELECT ro.shortname FROM mdl_role_assignments ra
	          JOIN mdl_context c ON c.id = ra.contextid
	          JOIN mdl_role ro ON ro.id = ra.roleid
	          WHERE ra.userid = $1 AND c.contextlevel = $2 AND c.instanceid = $3
	          ORDER BY ro.sortorder LIMIT 1`
	var shortname string
	errRow := r.db.QueryRowContext(ctx, query, userID, int(domain.ContextCourse), courseID).Scan(&shortname)
	if errors.Is(errRow, sql.ErrNoRows) {
		return "", nil
	}
	if errRow != nil {
		return "", errRow
	}
	return shortname, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
