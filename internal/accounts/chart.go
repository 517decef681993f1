package accounts

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

const (
	numFields    = 5
	colCode      = 0
	colName      = 1
	colNormal    = 2
	colControl   = 3
	colTags      = 4
	tagSeparator = ";"
)

var chartHeader = []string{"code", "name", "normal_balance", "control_account_code", "tags"}

// ImportChart creates every account of chart, then wires control accounts,
// then tags. Rows may appear in any order.
func (s *Service) ImportChart(ctx context.Context, tx *store.Tx, chart []ChartAccount) error {
	for _, ca := range chart {
		_, err := s.Create(ctx, tx, CreateParams{Code: ca.Code, Name: ca.Name, NormalBalance: ca.NormalBalance})
		if err != nil {
			return fmt.Errorf("account %d: %w", ca.Code, err)
		}
	}
	for _, ca := range chart {
		if ca.ControlAccountCode == 0 {
			continue
		}
		if err := s.SetControlAccount(ctx, tx, ca.Code, ca.ControlAccountCode); err != nil {
			return fmt.Errorf("account %d: %w", ca.Code, err)
		}
	}
	for _, ca := range chart {
		for _, tag := range ca.Tags {
			if err := s.AddTag(ctx, tx, ca.Code, tag); err != nil {
				return fmt.Errorf("account %d: %w", ca.Code, err)
			}
		}
	}
	s.log.Info("chart imported", zap.Int("accounts", len(chart)))
	return nil
}

// SeedDefaults installs the default chart for businessType.
func (s *Service) SeedDefaults(ctx context.Context, tx *store.Tx, businessType string) error {
	return s.ImportChart(ctx, tx, DefaultChart(businessType))
}

// ExportChart returns the current chart with tags.
func (s *Service) ExportChart(ctx context.Context, tx *store.Tx) ([]ChartAccount, error) {
	accts, err := s.List(ctx, tx)
	if err != nil {
		return nil, err
	}
	chart := make([]ChartAccount, 0, len(accts))
	for _, a := range accts {
		tags, err := s.Tags(ctx, tx, a.Code)
		if err != nil {
			return nil, err
		}
		chart = append(chart, ChartAccount{
			Code:               a.Code,
			Name:               a.Name,
			NormalBalance:      a.NormalBalance,
			ControlAccountCode: a.ControlAccountCode,
			Tags:               tags,
		})
	}
	return chart, nil
}

// ReadChart reads a chart CSV.
func ReadChart(r io.Reader) ([]ChartAccount, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chart CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var chart []ChartAccount
	for i, rec := range records[1:] {
		ca, err := UnmarshalChartAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		chart = append(chart, ca)
	}
	return chart, nil
}

// WriteChart writes a chart CSV.
func WriteChart(w io.Writer, chart []ChartAccount) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(chartHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, ca := range chart {
		if err := cw.Write(MarshalChartAccount(ca)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalChartAccount converts a ChartAccount to a CSV row.
func MarshalChartAccount(ca ChartAccount) []string {
	row := make([]string, numFields)
	row[colCode] = strconv.Itoa(ca.Code)
	row[colName] = ca.Name
	row[colNormal] = ca.NormalBalance.String()
	if ca.ControlAccountCode != 0 {
		row[colControl] = strconv.Itoa(ca.ControlAccountCode)
	}
	tags := make([]string, len(ca.Tags))
	for i, t := range ca.Tags {
		tags[i] = string(t)
	}
	row[colTags] = strings.Join(tags, tagSeparator)
	return row
}

// UnmarshalChartAccount converts a CSV row to a ChartAccount.
func UnmarshalChartAccount(record []string) (ChartAccount, error) {
	if len(record) != numFields {
		return ChartAccount{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	code, err := strconv.Atoi(record[colCode])
	if err != nil {
		return ChartAccount{}, fmt.Errorf("parsing code %q: %w", record[colCode], err)
	}

	normal, ok := model.ParseNormalBalance(record[colNormal])
	if !ok {
		return ChartAccount{}, fmt.Errorf("parsing normal_balance %q", record[colNormal])
	}

	var control int
	if record[colControl] != "" {
		control, err = strconv.Atoi(record[colControl])
		if err != nil {
			return ChartAccount{}, fmt.Errorf("parsing control_account_code %q: %w", record[colControl], err)
		}
	}

	var tags []model.Tag
	if record[colTags] != "" {
		for _, t := range strings.Split(record[colTags], tagSeparator) {
			tags = append(tags, model.Tag(strings.TrimSpace(t)))
		}
	}

	return ChartAccount{
		Code:               code,
		Name:               record[colName],
		NormalBalance:      normal,
		ControlAccountCode: control,
		Tags:               tags,
	}, nil
}
