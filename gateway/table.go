package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// TableGateway persists tasks directly in an Azure Storage table. All tasks
// of a board share one partition.
type TableGateway struct {
	table     *aztables.Client
	partition string
	logger    *log.Logger
	now       func() time.Time
}

// NewTableGateway connects to the table named tableName, creating it when it
// does not exist yet.
func NewTableGateway(ctx context.Context, connStr, tableName, partition string, logger *log.Logger) (*TableGateway, error) {
	if logger == nil {
		panic("gateway.NewTableGateway: logger is nil")
	}
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	client := svc.NewClient(tableName)
	if _, err := client.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return nil, err
		}
	}
	logger.WithField("table", tableName).Info("task table ready")
	return &TableGateway{table: client, partition: partition, logger: logger, now: time.Now}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Status      string `json:"Status"`
	Position    int    `json:"Position"`
	CreatedAt   string `json:"CreatedAt"`
	Labels      string `json:"Labels,omitempty"`
}

func encodeTaskEntity(partition string, t domain.Task) ([]byte, error) {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: partition, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Position:    t.Position,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if len(t.Labels) > 0 {
		labels, err := sonic.MarshalString(t.Labels)
		if err != nil {
			return nil, err
		}
		ent.Labels = labels
	}
	return sonic.Marshal(ent)
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	status := domain.Status(ent.Status)
	if !status.Valid() {
		return domain.Task{}, domain.ErrInvalidStatus
	}
	t := domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      status,
		Position:    ent.Position,
	}
	if ent.CreatedAt != "" {
		created, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
		if err != nil {
			return domain.Task{}, err
		}
		t.CreatedAt = created
	}
	if ent.Labels != "" {
		if err := sonic.UnmarshalString(ent.Labels, &t.Labels); err != nil {
			return domain.Task{}, err
		}
	}
	return t, nil
}

// List returns every task in the board partition.
func (g *TableGateway) List(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(g.partition, "'", "''") + "'"
	pager := g.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, tableError(err)
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				g.logger.WithError(err).Warn("skipping undecodable task entity")
				continue
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// Create stores a new task at the end of the Todo column.
func (g *TableGateway) Create(ctx context.Context, nt domain.NewTask) (domain.Task, error) {
	if err := domain.ValidateTitle(nt.Title); err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			return domain.Task{}, &Error{
				StatusCode: http.StatusBadRequest,
				Issues:     []domain.FieldIssue{{Field: vErr.Field, Message: vErr.Message}},
				Err:        err,
			}
		}
		return domain.Task{}, err
	}
	existing, err := g.List(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(nt.Title),
		Description: nt.Description,
		Status:      domain.StatusTodo,
		Position:    len(domain.Column(existing, domain.StatusTodo)),
		CreatedAt:   g.now().UTC(),
		Labels:      nt.Labels,
	}
	payload, err := encodeTaskEntity(g.partition, t)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := g.table.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, tableError(err)
	}
	return t, nil
}

// Update merges patch into the stored task. The write is conditional on the
// ETag read just before it.
func (g *TableGateway) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.Task{}, &Error{
			StatusCode: http.StatusBadRequest,
			Issues:     []domain.FieldIssue{{Field: "status", Message: "invalid status"}},
			Err:        domain.ErrInvalidStatus,
		}
	}
	resp, err := g.table.GetEntity(ctx, g.partition, id, nil)
	if err != nil {
		return domain.Task{}, tableError(err)
	}
	current, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return domain.Task{}, err
	}
	updated := patch.Apply(current)
	payload, err := encodeTaskEntity(g.partition, updated)
	if err != nil {
		return domain.Task{}, err
	}
	etag := resp.ETag
	_, err = g.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		return domain.Task{}, tableError(err)
	}
	return updated, nil
}

func tableError(err error) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return &Error{Err: err}
	}
	gwErr := &Error{StatusCode: respErr.StatusCode, Err: err}
	switch respErr.StatusCode {
	case http.StatusNotFound:
		gwErr.Message = "task not found"
	case http.StatusPreconditionFailed, http.StatusConflict:
		gwErr.Message = "task was modified concurrently"
	}
	return gwErr
}
