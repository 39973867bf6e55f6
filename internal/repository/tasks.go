package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tasktrack/internal/models"
)

type TaskRepo struct {
	db *sql.DB
}

func NewTaskRepo(db *sql.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// TaskFilter narrows a listing. Zero values mean "no filter".
type TaskFilter struct {
	Status         string
	AssignedUserID int
}

// TaskUpdate carries a partial update; nil fields are left untouched.
type TaskUpdate struct {
	Title          *string
	Description    *string
	DueDate        *time.Time
	Status         *string
	AssignedUserID *int
}

func (r *TaskRepo) Create(task models.Task) (models.Task, error) {
	err := r.db.QueryRow(
		`INSERT INTO tasks (title, description, due_date, status, assigned_user_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		task.Title, task.Description, task.DueDate, task.Status, task.AssignedUserID,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// GetByID loads a task with its assigned-user summary joined in. The join
// is LEFT because the assignee reference is a soft invariant: the user may
// have been removed.
func (r *TaskRepo) GetByID(id int) (models.Task, error) {
	var task models.Task
	var assignee struct {
		id       sql.NullInt64
		username sql.NullString
		email    sql.NullString
	}
	err := r.db.QueryRow(
		`SELECT t.id, t.title, t.description, t.due_date, t.status, t.assigned_user_id,
		        t.created_at, t.updated_at, u.id, u.username, u.email
		 FROM tasks t
		 LEFT JOIN users u ON u.id = t.assigned_user_id
		 WHERE t.id = $1`,
		id,
	).Scan(&task.ID, &task.Title, &task.Description, &task.DueDate, &task.Status,
		&task.AssignedUserID, &task.CreatedAt, &task.UpdatedAt,
		&assignee.id, &assignee.username, &assignee.email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	if assignee.id.Valid {
		task.AssignedUser = &models.UserSummary{
			ID:       int(assignee.id.Int64),
			Username: assignee.username.String,
			Email:    assignee.email.String,
		}
	}
	return task, nil
}

// List returns one page of tasks ordered by due date ascending, tasks
// without a due date first, ties broken by insertion order. A requested
// page past the end is clamped to the last non-empty page rather than
// returning an empty result.
func (r *TaskRepo) List(filter TaskFilter, page, limit int) (models.TaskPage, error) {
	where := ""
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.AssignedUserID != 0 {
		args = append(args, filter.AssignedUserID)
		where += fmt.Sprintf(" AND assigned_user_id = $%d", len(args))
	}

	var total int
	err := r.db.QueryRow("SELECT COUNT(*) FROM tasks WHERE 1=1"+where, args...).Scan(&total)
	if err != nil {
		return models.TaskPage{}, err
	}

	totalPages := (total + limit - 1) / limit
	if page > totalPages && totalPages != 0 {
		page = totalPages
	}

	query := fmt.Sprintf(
		`SELECT t.id, t.title, t.description, t.due_date, t.status, t.assigned_user_id,
		        t.created_at, t.updated_at, u.id, u.username, u.email
		 FROM tasks t
		 LEFT JOIN users u ON u.id = t.assigned_user_id
		 WHERE 1=1%s
		 ORDER BY t.due_date ASC NULLS FIRST, t.id ASC
		 LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return models.TaskPage{}, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var task models.Task
		var assignee struct {
			id       sql.NullInt64
			username sql.NullString
			email    sql.NullString
		}
		err := rows.Scan(&task.ID, &task.Title, &task.Description, &task.DueDate, &task.Status,
			&task.AssignedUserID, &task.CreatedAt, &task.UpdatedAt,
			&assignee.id, &assignee.username, &assignee.email)
		if err != nil {
			return models.TaskPage{}, err
		}
		if assignee.id.Valid {
			task.AssignedUser = &models.UserSummary{
				ID:       int(assignee.id.Int64),
				Username: assignee.username.String,
				Email:    assignee.email.String,
			}
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return models.TaskPage{}, err
	}

	return models.TaskPage{
		Page:       page,
		Limit:      limit,
		TotalTasks: total,
		TotalPages: totalPages,
		Tasks:      tasks,
	}, nil
}

func (r *TaskRepo) Update(id int, upd TaskUpdate) (models.Task, error) {
	var updatedID int
	err := r.db.QueryRow(
		`UPDATE tasks
		 SET title = COALESCE($1, title),
		     description = COALESCE($2, description),
		     due_date = COALESCE($3, due_date),
		     status = COALESCE($4, status),
		     assigned_user_id = COALESCE($5, assigned_user_id),
		     updated_at = NOW()
		 WHERE id = $6
		 RETURNING id`,
		upd.Title, upd.Description, upd.DueDate, upd.Status, upd.AssignedUserID, id,
	).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	return r.GetByID(updatedID)
}

func (r *TaskRepo) Delete(id int) error {
	res, err := r.db.Exec("DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
