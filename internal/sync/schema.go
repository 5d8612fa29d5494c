package sync

// Entity row models exist for schema migration only. The protocol reads and
// writes these tables through the registry's column maps, so every payload
// column is nullable and the sync bookkeeping columns are uniform across kinds:
// (tenant_id, entity_id) is the primary key, updated_at_ms orders the change
// stream, and a non-null deleted_at_ms marks a tombstone.

// ClientRow backs the "client" entity kind.
type ClientRow struct {
	TenantID    string  `gorm:"column:tenant_id;primaryKey;size:190;not null;index:idx_clients_stream,priority:1"`
	EntityID    string  `gorm:"column:entity_id;primaryKey;size:190;not null"`
	Name        *string `gorm:"column:name;size:320"`
	Phone       *string `gorm:"column:phone;size:64"`
	Email       *string `gorm:"column:email;size:320"`
	Address     *string `gorm:"column:address;size:512"`
	Notes       *string `gorm:"column:notes;type:text"`
	UpdatedAtMs int64   `gorm:"column:updated_at_ms;not null;index:idx_clients_stream,priority:2"`
	DeletedAtMs *int64  `gorm:"column:deleted_at_ms"`
}

// TableName provides the explicit table binding for GORM.
func (ClientRow) TableName() string {
	return "clients"
}

// EmployeeRow backs the "employee" entity kind.
type EmployeeRow struct {
	TenantID    string   `gorm:"column:tenant_id;primaryKey;size:190;not null;index:idx_employees_stream,priority:1"`
	EntityID    string   `gorm:"column:entity_id;primaryKey;size:190;not null"`
	Name        *string  `gorm:"column:name;size:320"`
	Phone       *string  `gorm:"column:phone;size:64"`
	Email       *string  `gorm:"column:email;size:320"`
	Role        *string  `gorm:"column:role;size:64"`
	HourlyRate  *float64 `gorm:"column:hourly_rate"`
	UpdatedAtMs int64    `gorm:"column:updated_at_ms;not null;index:idx_employees_stream,priority:2"`
	DeletedAtMs *int64   `gorm:"column:deleted_at_ms"`
}

// TableName provides the explicit table binding for GORM.
func (EmployeeRow) TableName() string {
	return "employees"
}

// ServiceTypeRow backs the "service_type" entity kind.
type ServiceTypeRow struct {
	TenantID        string   `gorm:"column:tenant_id;primaryKey;size:190;not null;index:idx_service_types_stream,priority:1"`
	EntityID        string   `gorm:"column:entity_id;primaryKey;size:190;not null"`
	Name            *string  `gorm:"column:name;size:320"`
	Description     *string  `gorm:"column:description;type:text"`
	DurationMinutes *float64 `gorm:"column:duration_minutes"`
	Price           *float64 `gorm:"column:price"`
	UpdatedAtMs     int64    `gorm:"column:updated_at_ms;not null;index:idx_service_types_stream,priority:2"`
	DeletedAtMs     *int64   `gorm:"column:deleted_at_ms"`
}

// TableName provides the explicit table binding for GORM.
func (ServiceTypeRow) TableName() string {
	return "service_types"
}

// TaskRow backs the "task" entity kind.
type TaskRow struct {
	TenantID      string   `gorm:"column:tenant_id;primaryKey;size:190;not null;index:idx_tasks_stream,priority:1"`
	EntityID      string   `gorm:"column:entity_id;primaryKey;size:190;not null"`
	Title         *string  `gorm:"column:title;size:320"`
	ClientID      *string  `gorm:"column:client_id;size:190"`
	ServiceTypeID *string  `gorm:"column:service_type_id;size:190"`
	EmployeeID    *string  `gorm:"column:employee_id;size:190"`
	ScheduledAt   *string  `gorm:"column:scheduled_at;size:64"`
	Status        *string  `gorm:"column:status;size:64"`
	Price         *float64 `gorm:"column:price"`
	Notes         *string  `gorm:"column:notes;type:text"`
	UpdatedAtMs   int64    `gorm:"column:updated_at_ms;not null;index:idx_tasks_stream,priority:2"`
	DeletedAtMs   *int64   `gorm:"column:deleted_at_ms"`
}

// TableName provides the explicit table binding for GORM.
func (TaskRow) TableName() string {
	return "tasks"
}

// FinanceEntryRow backs the "finance_entry" entity kind.
type FinanceEntryRow struct {
	TenantID    string   `gorm:"column:tenant_id;primaryKey;size:190;not null;index:idx_finance_entries_stream,priority:1"`
	EntityID    string   `gorm:"column:entity_id;primaryKey;size:190;not null"`
	Amount      *float64 `gorm:"column:amount"`
	Direction   *string  `gorm:"column:direction;size:16"`
	OccurredAt  *string  `gorm:"column:occurred_at;size:64"`
	Category    *string  `gorm:"column:category;size:190"`
	TaskID      *string  `gorm:"column:task_id;size:190"`
	Notes       *string  `gorm:"column:notes;type:text"`
	UpdatedAtMs int64    `gorm:"column:updated_at_ms;not null;index:idx_finance_entries_stream,priority:2"`
	DeletedAtMs *int64   `gorm:"column:deleted_at_ms"`
}

// TableName provides the explicit table binding for GORM.
func (FinanceEntryRow) TableName() string {
	return "finance_entries"
}

// EntityModels lists one model per registered entity table for AutoMigrate.
func EntityModels() []any {
	return []any{
		&ClientRow{},
		&EmployeeRow{},
		&ServiceTypeRow{},
		&TaskRow{},
		&FinanceEntryRow{},
	}
}
