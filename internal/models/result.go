package models

import (
	"encoding/json"
	"time"
)

// LineKind classifies what the engine did with an input line.
type LineKind string

const (
	KindAccountStart LineKind = "account-start"
	KindSectionStart LineKind = "section-start"
	KindAccountEnd   LineKind = "account-end"
	KindSectionEnd   LineKind = "section-end"
	KindHeader       LineKind = "header"
	KindRecordLead   LineKind = "record"
	KindContinuation LineKind = "continuation"
	KindDiscarded    LineKind = "discarded"
)

// DebugLine captures what the engine did with each assembled line.
type DebugLine struct {
	Page    int      `json:"page"`
	Index   int      `json:"index"`
	Y       float64  `json:"y"`
	Text    string   `json:"text"`
	Kind    LineKind `json:"kind"`
	Marker  string   `json:"marker,omitempty"`
	Account string   `json:"account,omitempty"`
}

// DocumentResult holds the finalized records of one document, bucketed by
// account in first-seen order.
type DocumentResult struct {
	File         string      `json:"file"`
	Profile      string      `json:"profile"`
	Pages        int         `json:"pages"`
	SkippedPages []int       `json:"skippedPages,omitempty"`
	Trace        []DebugLine `json:"trace,omitempty"`

	order    []AccountKey
	accounts map[AccountKey][]Record
}

// NewDocumentResult returns an empty result for file.
func NewDocumentResult(file, profile string) *DocumentResult {
	return &DocumentResult{
		File:     file,
		Profile:  profile,
		accounts: make(map[AccountKey][]Record),
	}
}

// Add appends a finalized record to the account's bucket.
func (d *DocumentResult) Add(key AccountKey, r Record) {
	if d.accounts == nil {
		d.accounts = make(map[AccountKey][]Record)
	}
	if _, ok := d.accounts[key]; !ok {
		d.order = append(d.order, key)
	}
	d.accounts[key] = append(d.accounts[key], r)
}

// Replace swaps an account's records, keeping its position.
func (d *DocumentResult) Replace(key AccountKey, records []Record) {
	if _, ok := d.accounts[key]; !ok {
		return
	}
	d.accounts[key] = records
}

// Accounts returns account keys in first-seen order.
func (d *DocumentResult) Accounts() []AccountKey {
	out := make([]AccountKey, len(d.order))
	copy(out, d.order)
	return out
}

// Records returns the account's records in document order.
func (d *DocumentResult) Records(key AccountKey) []Record {
	recs := d.accounts[key]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}

// Len returns the total number of records.
func (d *DocumentResult) Len() int {
	n := 0
	for _, recs := range d.accounts {
		n += len(recs)
	}
	return n
}

// Empty reports whether no record was found.
func (d *DocumentResult) Empty() bool { return d.Len() == 0 }

// Counts returns the number of records per account, in account order.
func (d *DocumentResult) Counts() []AccountFileCount {
	out := make([]AccountFileCount, 0, len(d.order))
	for _, key := range d.order {
		out = append(out, AccountFileCount{Account: string(key), File: d.File, Records: len(d.accounts[key])})
	}
	return out
}

type documentAccount struct {
	Account AccountKey `json:"account"`
	Records []Record   `json:"records"`
}

// MarshalJSON renders the account buckets as an ordered list.
func (d *DocumentResult) MarshalJSON() ([]byte, error) {
	type plain DocumentResult
	accounts := make([]documentAccount, 0, len(d.order))
	for _, key := range d.order {
		accounts = append(accounts, documentAccount{Account: key, Records: d.accounts[key]})
	}
	return json.Marshal(struct {
		*plain
		Accounts []documentAccount `json:"accounts"`
	}{(*plain)(d), accounts})
}

// SourcedRecord is a record tagged with the file it came from.
type SourcedRecord struct {
	File   string `json:"file"`
	Record Record `json:"record"`
}

// AccountFileCount is the number of records one file contributed to one
// account.
type AccountFileCount struct {
	Account string `json:"account" csv:"account"`
	File    string `json:"file" csv:"file"`
	Records int    `json:"records" csv:"records"`
}

// FailedDocument marks a document excluded from a batch.
type FailedDocument struct {
	File  string `json:"file"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// DocumentTrace is the decision trace of one document in a batch.
type DocumentTrace struct {
	File  string      `json:"file"`
	Lines []DebugLine `json:"lines"`
}

// ConsolidatedResult merges the records of several documents by account.
type ConsolidatedResult struct {
	BatchID  string             `json:"batchId"`
	Profile  string             `json:"profile,omitempty"`
	Files    []string           `json:"files"`
	Failed   []FailedDocument   `json:"failed,omitempty"`
	Counts   []AccountFileCount `json:"counts"`
	Elapsed  time.Duration      `json:"elapsed"`
	Warnings []string           `json:"warnings,omitempty"`
	Traces   []DocumentTrace    `json:"traces,omitempty"`

	order    []AccountKey
	accounts map[AccountKey][]SourcedRecord
}

// NewConsolidatedResult returns an empty batch result.
func NewConsolidatedResult(batchID string) *ConsolidatedResult {
	return &ConsolidatedResult{
		BatchID:  batchID,
		accounts: make(map[AccountKey][]SourcedRecord),
	}
}

// Append adds records from file to the account's bucket.
func (c *ConsolidatedResult) Append(key AccountKey, file string, records []Record) {
	if c.accounts == nil {
		c.accounts = make(map[AccountKey][]SourcedRecord)
	}
	if _, ok := c.accounts[key]; !ok {
		c.order = append(c.order, key)
	}
	for _, r := range records {
		c.accounts[key] = append(c.accounts[key], SourcedRecord{File: file, Record: r})
	}
}

// Accounts returns account keys in first-seen order.
func (c *ConsolidatedResult) Accounts() []AccountKey {
	out := make([]AccountKey, len(c.order))
	copy(out, c.order)
	return out
}

// Records returns the account's records across all files.
func (c *ConsolidatedResult) Records(key AccountKey) []SourcedRecord {
	recs := c.accounts[key]
	out := make([]SourcedRecord, len(recs))
	copy(out, recs)
	return out
}

// Len returns the total number of records.
func (c *ConsolidatedResult) Len() int {
	n := 0
	for _, recs := range c.accounts {
		n += len(recs)
	}
	return n
}

// Columns returns the ordered union of column names used by the account's
// records.
func (c *ConsolidatedResult) Columns(key AccountKey) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, sr := range c.accounts[key] {
		for _, name := range sr.Record.Columns() {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	return cols
}

// HasAssessments reports whether any record of the account carries a
// heuristic confidence.
func (c *ConsolidatedResult) HasAssessments(key AccountKey) bool {
	for _, sr := range c.accounts[key] {
		if sr.Record.Confidence() != ConfidenceUnset {
			return true
		}
	}
	return false
}

type consolidatedAccount struct {
	Account AccountKey      `json:"account"`
	Records []SourcedRecord `json:"records"`
}

// MarshalJSON renders the account buckets as an ordered list.
func (c *ConsolidatedResult) MarshalJSON() ([]byte, error) {
	type plain ConsolidatedResult
	accounts := make([]consolidatedAccount, 0, len(c.order))
	for _, key := range c.order {
		accounts = append(accounts, consolidatedAccount{Account: key, Records: c.accounts[key]})
	}
	return json.Marshal(struct {
		*plain
		Accounts []consolidatedAccount `json:"accounts"`
	}{(*plain)(c), accounts})
}
