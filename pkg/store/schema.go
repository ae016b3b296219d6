// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package store

import (
	"context"
	"fmt"

	"github.com/efficientgo/core/errors"

	"github.com/thanos-community/hdbcomp/pkg/series"
)

// FactIntervals are the intervals with a real-data fact table in the schema.
var FactIntervals = []series.Interval{series.Instant, series.Hour, series.Day, series.Month, series.Year, series.WaterYear}

// schema is the subset of the HDB schema read and written by computations. It is kept to the
// dialect shared by PostgreSQL and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS hdb_objecttype (
		objecttype_id BIGINT PRIMARY KEY,
		objecttype_name VARCHAR(64) NOT NULL,
		objecttype_tag VARCHAR(32) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS hdb_site (
		site_id BIGINT PRIMARY KEY,
		site_name VARCHAR(240) NOT NULL,
		objecttype_id BIGINT NOT NULL,
		parent_site_id BIGINT,
		basin_id BIGINT,
		state_id BIGINT,
		hydrologic_unit VARCHAR(240)
	)`,
	`CREATE TABLE IF NOT EXISTS hdb_datatype (
		datatype_id BIGINT PRIMARY KEY,
		datatype_name VARCHAR(240) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS hdb_site_datatype (
		site_datatype_id BIGINT PRIMARY KEY,
		site_id BIGINT NOT NULL,
		datatype_id BIGINT NOT NULL,
		UNIQUE (site_id, datatype_id)
	)`,
	`CREATE TABLE IF NOT EXISTS hdb_attr (
		attr_id BIGINT PRIMARY KEY,
		attr_name VARCHAR(240) NOT NULL UNIQUE,
		attr_value_type VARCHAR(10) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ref_site_coef (
		site_id BIGINT NOT NULL,
		attr_id BIGINT NOT NULL,
		coef_idx BIGINT NOT NULL,
		coef DOUBLE PRECISION NOT NULL,
		effective_start_date_time TIMESTAMP,
		effective_end_date_time TIMESTAMP,
		PRIMARY KEY (site_id, attr_id, coef_idx)
	)`,
	`CREATE TABLE IF NOT EXISTS hdb_feature_class (
		feature_class_id BIGINT PRIMARY KEY,
		feature_class_name VARCHAR(64) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS hdb_feature (
		feature_id BIGINT PRIMARY KEY,
		feature_name VARCHAR(240) NOT NULL,
		feature_class_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS hdb_attr_feature (
		attr_id BIGINT NOT NULL,
		feature_id BIGINT NOT NULL,
		PRIMARY KEY (attr_id, feature_id)
	)`,
	`CREATE TABLE IF NOT EXISTS hdb_datatype_feature (
		datatype_id BIGINT NOT NULL,
		feature_class_id BIGINT NOT NULL,
		feature_id BIGINT NOT NULL,
		PRIMARY KEY (datatype_id, feature_class_id)
	)`,
	`CREATE TABLE IF NOT EXISTS hdb_loading_application (
		loading_application_id BIGINT PRIMARY KEY,
		loading_application_name VARCHAR(64) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS cp_ts_id (
		ts_id BIGINT PRIMARY KEY,
		site_datatype_id BIGINT NOT NULL,
		interval VARCHAR(16) NOT NULL,
		table_selector VARCHAR(3) NOT NULL,
		model_id BIGINT NOT NULL DEFAULT -1,
		UNIQUE (site_datatype_id, interval, table_selector, model_id)
	)`,
	`CREATE TABLE IF NOT EXISTS cp_comp_depends (
		computation_id BIGINT NOT NULL,
		ts_id BIGINT NOT NULL,
		PRIMARY KEY (computation_id, ts_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ref_spatial_relation (
		a_site_id BIGINT NOT NULL,
		b_site_id BIGINT NOT NULL,
		attr_id BIGINT NOT NULL,
		value DOUBLE PRECISION,
		PRIMARY KEY (a_site_id, b_site_id, attr_id)
	)`,
	`CREATE TABLE IF NOT EXISTS hdb_ext_data_source (
		ext_data_source_id BIGINT PRIMARY KEY,
		ext_data_source_name VARCHAR(64) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ref_ext_site_data_map (
		mapping_id BIGINT PRIMARY KEY,
		ext_data_source_id BIGINT NOT NULL,
		hdb_site_datatype_id BIGINT NOT NULL,
		hdb_interval_name VARCHAR(16) NOT NULL,
		is_active_y_n CHAR(1) NOT NULL DEFAULT 'Y'
	)`,
}

const factTable = `CREATE TABLE IF NOT EXISTS %s (
		site_datatype_id BIGINT NOT NULL,
		start_date_time TIMESTAMP NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		validation CHAR(1),
		derivation_flags VARCHAR(20),
		computation_id BIGINT,
		loading_application_id BIGINT,
		PRIMARY KEY (site_datatype_id, start_date_time)
	)`

// CreateSchema creates the HDB tables used by computations when they do not exist.
func (d *DB) CreateSchema(ctx context.Context) error {
	stmts := append([]string{}, schema...)
	for _, i := range FactIntervals {
		tbl, err := i.Table(series.RealTable)
		if err != nil {
			return err
		}
		stmts = append(stmts, fmt.Sprintf(factTable, tbl))
	}
	for _, s := range stmts {
		if err := d.Exec(ctx, s); err != nil {
			return errors.Wrap(err, "create schema")
		}
	}
	return nil
}
