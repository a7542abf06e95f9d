package config

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}
	var err error

	if config.Inputs, err = s.GetInputs(); err != nil {
		return nil, fmt.Errorf("failed to load inputs: %w", err)
	}
	if config.Transforms, err = s.GetTransforms(); err != nil {
		return nil, fmt.Errorf("failed to load transforms: %w", err)
	}
	if config.Zones, err = s.GetZones(); err != nil {
		return nil, fmt.Errorf("failed to load zones: %w", err)
	}
	if config.Functions, err = s.GetFunctions(); err != nil {
		return nil, fmt.Errorf("failed to load functions: %w", err)
	}
	if config.Scenarios, err = s.GetScenarios(); err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}

	return config, nil
}

// GetInputs returns input configurations from the database
func (s *SQLiteProvider) GetInputs() ([]InputData, error) {
	query := `
		SELECT name, description, units, default_weight
		FROM inputs
		ORDER BY id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query inputs: %w", err)
	}
	defer rows.Close()

	var inputs []InputData
	for rows.Next() {
		var input InputData
		var description, units sql.NullString
		var defaultWeight sql.NullFloat64

		if err := rows.Scan(&input.Name, &description, &units, &defaultWeight); err != nil {
			return nil, fmt.Errorf("failed to scan input row: %w", err)
		}

		input.Description = description.String
		input.Units = units.String
		if defaultWeight.Valid {
			input.DefaultWeight = defaultWeight.Float64
		}

		inputs = append(inputs, input)
	}

	return inputs, rows.Err()
}

// GetTransforms returns transforms with their inflection points
func (s *SQLiteProvider) GetTransforms() ([]TransformData, error) {
	query := `
		SELECT t.id, t.name, tt.name, i.input_value, i.output_value
		FROM transforms t
		JOIN transform_types tt ON tt.id = t.type_id
		LEFT JOIN inflections i ON i.transform_id = t.id
		ORDER BY t.id, i.input_value, i.id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query transforms: %w", err)
	}
	defer rows.Close()

	var transforms []TransformData
	lastID := int64(-1)
	for rows.Next() {
		var id int64
		var name, typeName string
		var in, out sql.NullFloat64

		if err := rows.Scan(&id, &name, &typeName, &in, &out); err != nil {
			return nil, fmt.Errorf("failed to scan transform row: %w", err)
		}

		if id != lastID {
			transforms = append(transforms, TransformData{Name: name, Type: typeName})
			lastID = id
		}

		// A transform without inflections yields one row of NULLs.
		if in.Valid && out.Valid {
			t := &transforms[len(transforms)-1]
			t.Inflections = append(t.Inflections, InflectionData{Input: in.Float64, Output: out.Float64})
		}
	}

	return transforms, rows.Err()
}

// GetZones returns context zones from the database
func (s *SQLiteProvider) GetZones() ([]ZoneData, error) {
	query := `
		SELECT i.name, t.name, z.min_value, z.max_value
		FROM input_zones z
		JOIN inputs i ON i.id = z.input_id
		JOIN transforms t ON t.id = z.transform_id
		ORDER BY z.id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query input zones: %w", err)
	}
	defer rows.Close()

	var zones []ZoneData
	for rows.Next() {
		var z ZoneData
		if err := rows.Scan(&z.Input, &z.Transform, &z.Min, &z.Max); err != nil {
			return nil, fmt.Errorf("failed to scan input zone row: %w", err)
		}
		zones = append(zones, z)
	}

	return zones, rows.Err()
}

// GetFunctions returns context-free transform bindings from the database
func (s *SQLiteProvider) GetFunctions() ([]FunctionData, error) {
	query := `
		SELECT i.name, t.name
		FROM functions f
		JOIN inputs i ON i.id = f.input_id
		JOIN transforms t ON t.id = f.transform_id
		ORDER BY f.id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query functions: %w", err)
	}
	defer rows.Close()

	var functions []FunctionData
	for rows.Next() {
		var f FunctionData
		if err := rows.Scan(&f.Input, &f.Transform); err != nil {
			return nil, fmt.Errorf("failed to scan function row: %w", err)
		}
		functions = append(functions, f)
	}

	return functions, rows.Err()
}

// GetScenarios returns scenarios and their weighted inputs
func (s *SQLiteProvider) GetScenarios() ([]ScenarioData, error) {
	query := `
		SELECT sc.id, sc.name, sc.description, sc.combination, o.name, sc.override_value
		FROM scenarios sc
		LEFT JOIN inputs o ON o.id = sc.override_input_id
		ORDER BY sc.id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []ScenarioData
	index := make(map[int64]int)
	for rows.Next() {
		var id int64
		var sc ScenarioData
		var description, override sql.NullString
		var overrideValue sql.NullFloat64

		if err := rows.Scan(&id, &sc.Name, &description, &sc.Combination, &override, &overrideValue); err != nil {
			return nil, fmt.Errorf("failed to scan scenario row: %w", err)
		}

		sc.Description = description.String
		sc.Override = override.String
		if overrideValue.Valid {
			sc.OverrideValue = overrideValue.Float64
		}

		index[id] = len(scenarios)
		scenarios = append(scenarios, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	inputRows, err := s.db.Query(`
		SELECT si.scenario_id, i.name, si.weight
		FROM scenario_inputs si
		JOIN inputs i ON i.id = si.input_id
		ORDER BY si.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenario inputs: %w", err)
	}
	defer inputRows.Close()

	for inputRows.Next() {
		var scenarioID int64
		var in ScenarioInputData
		var weight sql.NullFloat64

		if err := inputRows.Scan(&scenarioID, &in.Input, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan scenario input row: %w", err)
		}
		if weight.Valid {
			in.Weight = weight.Float64
		}

		k, ok := index[scenarioID]
		if !ok {
			continue
		}
		scenarios[k].Inputs = append(scenarios[k].Inputs, in)
	}

	return scenarios, inputRows.Err()
}

// IsReadOnly returns false since SQLite supports read-write operations
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.clearExistingConfig(tx); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	inputIDs := make(map[string]int64)
	for _, input := range configData.Inputs {
		id, err := s.insertInput(tx, &input)
		if err != nil {
			return fmt.Errorf("failed to insert input %s: %w", input.Name, err)
		}
		inputIDs[input.Name] = id
	}

	transformIDs := make(map[string]int64)
	for _, transform := range configData.Transforms {
		id, err := s.insertTransform(tx, &transform)
		if err != nil {
			return fmt.Errorf("failed to insert transform %s: %w", transform.Name, err)
		}
		transformIDs[transform.Name] = id
	}

	lookup := func(kind string, ids map[string]int64, name string) (int64, error) {
		id, ok := ids[name]
		if !ok {
			return 0, fmt.Errorf("unknown %s %q", kind, name)
		}
		return id, nil
	}

	for _, z := range configData.Zones {
		inputID, err := lookup("input", inputIDs, z.Input)
		if err != nil {
			return fmt.Errorf("failed to insert zone: %w", err)
		}
		transformID, err := lookup("transform", transformIDs, z.Transform)
		if err != nil {
			return fmt.Errorf("failed to insert zone: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO input_zones (input_id, transform_id, min_value, max_value) VALUES (?, ?, ?, ?)`,
			inputID, transformID, z.Min, z.Max,
		); err != nil {
			return fmt.Errorf("failed to insert zone for %s: %w", z.Input, err)
		}
	}

	for _, f := range configData.Functions {
		inputID, err := lookup("input", inputIDs, f.Input)
		if err != nil {
			return fmt.Errorf("failed to insert function: %w", err)
		}
		transformID, err := lookup("transform", transformIDs, f.Transform)
		if err != nil {
			return fmt.Errorf("failed to insert function: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO functions (input_id, transform_id) VALUES (?, ?)`,
			inputID, transformID,
		); err != nil {
			return fmt.Errorf("failed to insert function for %s: %w", f.Input, err)
		}
	}

	for _, sc := range configData.Scenarios {
		if err := s.insertScenario(tx, &sc, inputIDs); err != nil {
			return fmt.Errorf("failed to insert scenario %s: %w", sc.Name, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteProvider) clearExistingConfig(tx *sql.Tx) error {
	queries := []string{
		"DELETE FROM scenario_inputs",
		"DELETE FROM scenarios",
		"DELETE FROM input_zones",
		"DELETE FROM functions",
		"DELETE FROM inflections",
		"DELETE FROM transforms",
		"DELETE FROM inputs",
	}

	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteProvider) insertInput(tx *sql.Tx, input *InputData) (int64, error) {
	result, err := tx.Exec(
		`INSERT INTO inputs (name, description, units, default_weight) VALUES (?, ?, ?, ?)`,
		input.Name, nullString(input.Description), nullString(input.Units), nullFloat64(input.DefaultWeight),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteProvider) insertTransform(tx *sql.Tx, transform *TransformData) (int64, error) {
	var typeID int64
	err := tx.QueryRow(`SELECT id FROM transform_types WHERE name = lower(?)`, transform.Type).Scan(&typeID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("unknown transform type %q", transform.Type)
	}
	if err != nil {
		return 0, err
	}

	result, err := tx.Exec(`INSERT INTO transforms (name, type_id) VALUES (?, ?)`, transform.Name, typeID)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, p := range transform.Inflections {
		if _, err := tx.Exec(
			`INSERT INTO inflections (transform_id, input_value, output_value) VALUES (?, ?, ?)`,
			id, p.Input, p.Output,
		); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (s *SQLiteProvider) insertScenario(tx *sql.Tx, sc *ScenarioData, inputIDs map[string]int64) error {
	var overrideID sql.NullInt64
	if sc.Override != "" {
		id, ok := inputIDs[sc.Override]
		if !ok {
			return fmt.Errorf("unknown override input %q", sc.Override)
		}
		overrideID = sql.NullInt64{Int64: id, Valid: true}
	}

	combination := sc.Combination
	if combination == "" {
		combination = "mean"
	}

	result, err := tx.Exec(
		`INSERT INTO scenarios (name, description, combination, override_input_id, override_value) VALUES (?, ?, ?, ?, ?)`,
		sc.Name, nullString(sc.Description), combination, overrideID, nullFloat64(sc.OverrideValue),
	)
	if err != nil {
		return err
	}
	scenarioID, err := result.LastInsertId()
	if err != nil {
		return err
	}

	for _, in := range sc.Inputs {
		inputID, ok := inputIDs[in.Input]
		if !ok {
			return fmt.Errorf("unknown input %q", in.Input)
		}
		if _, err := tx.Exec(
			`INSERT INTO scenario_inputs (scenario_id, input_id, weight) VALUES (?, ?, ?)`,
			scenarioID, inputID, nullFloat64(in.Weight),
		); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions for handling nullable fields
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat64(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
