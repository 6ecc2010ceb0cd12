// Package assemblydao records the assembly and execution history of tenant
// pipelines in DynamoDB. One record per invocation, keyed by tenant and
// environment with a KSUID sort key.
package assemblydao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/gox/slicex"
)

const latest = "latest"

// TableName returns the assembly table name for the deployer environment.
func TableName(env string) string {
	return fmt.Sprintf("%s-infra-provisioner-assemblies", env)
}

// PK represents a DynamoDB partition key in format {tenant}/{env}
// Example: acme/dev
type PK string

// NewPK creates a new partition key from tenant and env
func NewPK(tenantID, env string) PK {
	return PK(fmt.Sprintf("%s/%s", tenantID, env))
}

// ParsePK parses a partition key into its tenant and env components
func ParsePK(pk PK) (tenantID, env string, err error) {
	s := string(pk)
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid PK format: %s, expected {tenant}/{env}", s)
	}
	return parts[0], parts[1], nil
}

// String returns the string representation of the partition key
func (pk PK) String() string {
	return string(pk)
}

// ID represents an assembly ID in format {tenant}/{env}:{ksuid}
// Example: acme/dev:2HFj3kLmNoPqRsTuVwXy
type ID string

func (id ID) String() string {
	return string(id)
}

// ParseID parses an assembly ID into its partition key (pk) and sort key (sk) components
func ParseID(id ID) (pk PK, sk string, err error) {
	s := string(id)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid assembly ID format: %s, expected {tenant}/{env}:{ksuid}", s)
	}
	return PK(parts[0]), parts[1], nil
}

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// Status represents the lifecycle state of an assembly record
type Status string

const (
	StatusAssembled Status = "ASSEMBLED"
	StatusApplied   Status = "APPLIED"
	StatusStarted   Status = "STARTED"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Record represents one pipeline assembly in DynamoDB
type Record struct {
	PK             PK      `ddb:"hash" dynamodbav:"pk"`  // {tenant}/{env} - DynamoDB partition key
	SK             string  `ddb:"range" dynamodbav:"sk"` // KSUID - DynamoDB sort key
	ID             ID      `dynamodbav:"id,omitempty"`   // ID is only used for latest entries
	TenantID       string  `dynamodbav:"tenant_id,omitempty"`
	Env            string  `dynamodbav:"env,omitempty"`
	PipelineName   string  `dynamodbav:"pipeline_name,omitempty"`
	NodeCount      int     `dynamodbav:"node_count,omitempty"`
	ManualApproval bool    `dynamodbav:"manual_approval"`
	Status         Status  `dynamodbav:"status,omitempty"`
	ExecutionArn   *string `dynamodbav:"execution_arn,omitempty"`
	ErrorMsg       *string `dynamodbav:"error_msg,omitempty"`
	CreatedAt      int64   `dynamodbav:"created_at,omitempty"`
	FinishedAt     *int64  `dynamodbav:"finished_at,omitempty"`
	UpdatedAt      int64   `dynamodbav:"updated_at,omitempty"`
}

// GetID returns the full assembly ID in format: {tenant}/{env}:{ksuid}
func (r *Record) GetID() ID {
	if r.ID != "" {
		return r.ID
	}
	return NewID(r.PK, r.SK)
}

// CreateInput contains the fields needed to create a new assembly record
type CreateInput struct {
	TenantID       string
	Env            string
	SK             string // KSUID sort key
	PipelineName   string
	NodeCount      int
	ManualApproval bool
}

// DAO provides data access operations for assembly records
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create creates a new assembly record with initial status ASSEMBLED
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	pk := NewPK(input.TenantID, input.Env)
	now := time.Now().Unix()

	record := Record{
		PK:             pk,
		SK:             input.SK,
		TenantID:       input.TenantID,
		Env:            input.Env,
		PipelineName:   input.PipelineName,
		NodeCount:      input.NodeCount,
		ManualApproval: input.ManualApproval,
		Status:         StatusAssembled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create assembly record: %w", err)
	}

	return record, nil
}

// Find retrieves an assembly record by ID
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record

	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("assembly record not found: %s", id)
		}
		return Record{}, fmt.Errorf("failed to find assembly record: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("assembly record not found: %s", id)
	}

	return record, nil
}

// UpdateStatus updates the status of an assembly record and refreshes the
// "latest" magic record (pk=latest/{env}, sk={tenant}/{env}) so the newest
// assembly per tenant can be queried without scanning.
func (d *DAO) UpdateStatus(ctx context.Context, pk PK, sk string, status Status, errorMsg *string) error {
	now := time.Now().Unix()

	update := d.table.Update(pk.String()).
		Range(sk).
		Set("#Status = ?", string(status)).
		Set("#UpdatedAt = ?", now)

	if status == StatusSucceeded || status == StatusFailed {
		update = update.Set("#FinishedAt = ?", now)
	}
	if errorMsg != nil {
		update = update.Set("#ErrorMsg = ?", *errorMsg)
	}

	put, err := d.latestPut(pk, sk, status, now)
	if err != nil {
		return err
	}

	if _, err := d.db.TransactWriteItemsWithContext(ctx, update, put); err != nil {
		return fmt.Errorf("failed to update assembly status: %w", err)
	}

	return nil
}

// StartExecution atomically updates an assembly record to STARTED and sets
// the execution ARN.
func (d *DAO) StartExecution(ctx context.Context, pk PK, sk string, executionArn string) error {
	now := time.Now().Unix()

	update := d.table.Update(pk.String()).
		Range(sk).
		Set("#Status = ?", string(StatusStarted)).
		Set("#ExecutionArn = ?", executionArn).
		Set("#UpdatedAt = ?", now)

	put, err := d.latestPut(pk, sk, StatusStarted, now)
	if err != nil {
		return err
	}

	if _, err := d.db.TransactWriteItemsWithContext(ctx, update, put); err != nil {
		return fmt.Errorf("failed to start execution: %w", err)
	}

	return nil
}

func (d *DAO) latestPut(pk PK, sk string, status Status, now int64) (*ddb.Put, error) {
	tenantID, env, err := ParsePK(pk)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PK: %w", err)
	}

	latestRecord := &Record{
		PK:        NewPK(latest, env),
		SK:        pk.String(), // SK in latest record = PK from original (tenant/env identifier)
		ID:        NewID(pk, sk),
		TenantID:  tenantID,
		Env:       env,
		Status:    status,
		UpdatedAt: now,
	}

	return d.table.Put(latestRecord), nil
}

// Query returns all assemblies for a given tenant/env partition key
func (d *DAO) Query(ctx context.Context, pk PK) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", pk.String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query assemblies: %w", err)
	}

	return records, nil
}

// QueryByTenantEnv returns all assemblies for a given tenant and environment
func (d *DAO) QueryByTenantEnv(ctx context.Context, tenantID, env string) ([]Record, error) {
	return d.Query(ctx, NewPK(tenantID, env))
}

// QueryLatest returns the most recent assembly for each tenant in the given
// environment, via the "latest" magic records.
func (d *DAO) QueryLatest(ctx context.Context, env string) ([]Record, error) {
	pk := NewPK(latest, env)
	var records []Record

	err := d.table.Query("#PK = ?", pk).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest assemblies: %w", err)
	}

	ids := slicex.Map(records, GetID)

	assemblies := make([]Record, 0, len(ids))
	for _, id := range ids {
		record, err := d.Find(ctx, id)
		if err != nil {
			// Skip records that are not found (may have been deleted)
			continue
		}
		assemblies = append(assemblies, record)
	}

	return assemblies, nil
}

// GetID is a projection helper for slicex
func GetID(r Record) ID {
	return r.GetID()
}
