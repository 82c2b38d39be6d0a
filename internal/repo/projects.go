package repo

import (
	"context"
	"fmt"

	"github.com/mkessler/taskloom/internal/model"
)

// CreateProject validates and writes a new project.
func (r *Repo) CreateProject(ctx context.Context, sess Session, project *model.Project) (*model.Project, error) {
	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	if project.ID == "" {
		project.ID = newID()
	}
	now := r.now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	row, err := model.RowOf(project)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindProjects, row); err != nil {
		return nil, err
	}
	return project, nil
}

// UpdateProject writes the project's new state.
func (r *Repo) UpdateProject(ctx context.Context, sess Session, project *model.Project) (*model.Project, error) {
	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	if project.ID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	var prev model.Project
	if err := r.getEntity(ctx, model.KindProjects, project.ID, &prev); err != nil {
		return nil, err
	}
	project.CreatedAt = prev.CreatedAt
	project.UpdatedAt = r.now().UTC()

	row, err := model.RowOf(project)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindProjects, row); err != nil {
		return nil, err
	}
	return project, nil
}

// DeleteProject removes the project with a tombstone revision.
func (r *Repo) DeleteProject(ctx context.Context, sess Session, id string) error {
	return r.deleteEntity(ctx, sess, model.KindProjects, id)
}

// ListProjects returns every project, optionally scoped to a team.
func (r *Repo) ListProjects(ctx context.Context, teamID string) ([]*model.Project, error) {
	where := ""
	var args []any
	if teamID != "" {
		where = "team_id = ?"
		args = append(args, teamID)
	}
	rows, err := r.store.QueryRows(ctx, model.KindProjects, where, args...)
	if err != nil {
		return nil, err
	}
	projects := make([]*model.Project, 0, len(rows))
	for _, row := range rows {
		var p model.Project
		if err := model.FromRow(row, &p); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	return projects, nil
}

// CreateTeam validates and writes a new team.
func (r *Repo) CreateTeam(ctx context.Context, sess Session, team *model.Team) (*model.Team, error) {
	if err := team.Validate(); err != nil {
		return nil, fmt.Errorf("invalid team: %w", err)
	}
	if team.ID == "" {
		team.ID = newID()
	}
	now := r.now().UTC()
	team.CreatedAt = now
	team.UpdatedAt = now

	row, err := model.RowOf(team)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindTeams, row); err != nil {
		return nil, err
	}
	return team, nil
}

// DeleteTeam removes the team with a tombstone revision.
func (r *Repo) DeleteTeam(ctx context.Context, sess Session, id string) error {
	return r.deleteEntity(ctx, sess, model.KindTeams, id)
}

// AddTeamMember links a user to a team.
func (r *Repo) AddTeamMember(ctx context.Context, sess Session, member *model.TeamMember) (*model.TeamMember, error) {
	if err := member.Validate(); err != nil {
		return nil, fmt.Errorf("invalid team member: %w", err)
	}
	if member.ID == "" {
		member.ID = newID()
	}
	now := r.now().UTC()
	member.CreatedAt = now
	member.UpdatedAt = now

	row, err := model.RowOf(member)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindTeamMembers, row); err != nil {
		return nil, err
	}
	return member, nil
}

// RemoveTeamMember unlinks a member with a tombstone revision.
func (r *Repo) RemoveTeamMember(ctx context.Context, sess Session, id string) error {
	return r.deleteEntity(ctx, sess, model.KindTeamMembers, id)
}

// ListTeamMembers returns the members of a team.
func (r *Repo) ListTeamMembers(ctx context.Context, teamID string) ([]*model.TeamMember, error) {
	rows, err := r.store.QueryRows(ctx, model.KindTeamMembers, "team_id = ?", teamID)
	if err != nil {
		return nil, err
	}
	members := make([]*model.TeamMember, 0, len(rows))
	for _, row := range rows {
		var m model.TeamMember
		if err := model.FromRow(row, &m); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}
	return members, nil
}
