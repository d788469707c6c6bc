package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Parser decodes model replies. Naive timestamps are interpreted in Location.
type Parser struct {
	Location *time.Location
}

// NewParser creates a parser for the given location (time.Local when nil).
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{Location: loc}
}

type envelope struct {
	Action     *Name           `json:"action"`
	Parameters json.RawMessage `json:"parameters"`
}

type createParams struct {
	Summary       string `json:"summary"`
	StartDateTime string `json:"start_datetime"`
	EndDateTime   string `json:"end_datetime"`
	Description   string `json:"description"`
	TimeZone      string `json:"timezone"`
}

type listParams struct {
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	StartDateTime string `json:"start_datetime"`
	EndDateTime   string `json:"end_datetime"`
	TimeMin       string `json:"time_min"`
	TimeMax       string `json:"time_max"`
	Query         string `json:"query"`
}

type refParams struct {
	EventID       string `json:"event_id"`
	Summary       string `json:"summary"`
	StartDateTime string `json:"start_datetime"`
}

type changeParams struct {
	Summary       string `json:"summary"`
	Description   string `json:"description"`
	StartDateTime string `json:"start_datetime"`
	EndDateTime   string `json:"end_datetime"`
}

type updateParams struct {
	refParams
	Updates          *changeParams `json:"updates"`
	UpdatedEventData *changeParams `json:"updated_event_data"`
}

type rangeParams struct {
	StartDateTime string `json:"start_datetime"`
	EndDateTime   string `json:"end_datetime"`
	TimeMin       string `json:"time_min"`
	TimeMax       string `json:"time_max"`
}

// Parse never fails. A reply that is not a JSON object naming a known action
// is returned as plain text carrying reply unchanged. A known action with a
// malformed parameter is returned with Invalid set, so the sender can be
// asked for that parameter instead of seeing the raw reply.
func (p *Parser) Parse(reply string) Result {
	req, err := p.decode(reply)
	if err != nil {
		var invalid *ParamError
		if errors.As(err, &invalid) {
			return Result{Text: reply, Invalid: invalid}
		}
		return Result{Text: reply}
	}
	return Result{Request: req}
}

func (p *Parser) decode(reply string) (Request, error) {
	body := StripCodeFence(reply)
	if !strings.HasPrefix(body, "{") {
		return nil, fmt.Errorf("reply is not a JSON object")
	}

	var env envelope
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("invalid action JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after action JSON")
	}
	if env.Action == nil || !env.Action.Known() {
		return nil, fmt.Errorf("missing or unknown action")
	}

	params := env.Parameters
	if len(bytes.TrimSpace(params)) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = json.RawMessage("{}")
	}

	req, err := p.decodeParams(*env.Action, params)
	if err != nil {
		return nil, asParamError(*env.Action, err)
	}
	return req, nil
}

func (p *Parser) decodeParams(name Name, params json.RawMessage) (Request, error) {
	switch name {
	case NameCreateEvent:
		return p.decodeCreate(params)
	case NameListEvents:
		return p.decodeList(params)
	case NameUpdateEvent:
		return p.decodeUpdate(params)
	case NameDeleteEvent:
		return p.decodeDelete(params)
	case NameCheckAvailability:
		return p.decodeCheck(params)
	}
	return nil, fmt.Errorf("unsupported action %q", name)
}

func (p *Parser) decodeCreate(raw json.RawMessage) (Request, error) {
	var in createParams
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}

	loc := p.Location
	if in.TimeZone != "" {
		tzLoc, err := time.LoadLocation(in.TimeZone)
		if err != nil {
			return nil, &ParamError{Field: "timezone", Err: err}
		}
		loc = tzLoc
	}

	start, err := parseTime(in.StartDateTime, loc)
	if err != nil {
		return nil, &ParamError{Field: "start_datetime", Err: err}
	}
	end, err := parseTime(in.EndDateTime, loc)
	if err != nil {
		return nil, &ParamError{Field: "end_datetime", Err: err}
	}

	return CreateEvent{
		Summary:     strings.TrimSpace(in.Summary),
		Start:       p.normalize(start),
		End:         p.normalize(end),
		Description: in.Description,
		TimeZone:    in.TimeZone,
	}, nil
}

func (p *Parser) decodeList(raw json.RawMessage) (Request, error) {
	var in listParams
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}

	start, err := p.firstTime("start_datetime", in.StartDateTime, in.TimeMin)
	if err != nil {
		return nil, err
	}
	end, err := p.firstTime("end_datetime", in.EndDateTime, in.TimeMax)
	if err != nil {
		return nil, err
	}

	// Whole-day bounds: start_date opens the day, end_date closes it.
	if start.IsZero() && in.StartDate != "" {
		if start, err = parseDate(in.StartDate, p.Location); err != nil {
			return nil, &ParamError{Field: "start_date", Err: err}
		}
	}
	if end.IsZero() && in.EndDate != "" {
		day, err := parseDate(in.EndDate, p.Location)
		if err != nil {
			return nil, &ParamError{Field: "end_date", Err: err}
		}
		end = day.AddDate(0, 0, 1)
	}

	return ListEvents{Start: start, End: end, Query: strings.TrimSpace(in.Query)}, nil
}

func (p *Parser) decodeRef(in refParams) (EventRef, error) {
	start, err := p.firstTime("start_datetime", in.StartDateTime)
	if err != nil {
		return EventRef{}, err
	}
	return EventRef{
		EventID: strings.TrimSpace(in.EventID),
		Summary: strings.TrimSpace(in.Summary),
		Start:   start,
	}, nil
}

func (p *Parser) decodeUpdate(raw json.RawMessage) (Request, error) {
	var in updateParams
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}

	target, err := p.decodeRef(in.refParams)
	if err != nil {
		return nil, err
	}

	changes := in.Updates
	if changes == nil {
		changes = in.UpdatedEventData
	}
	var out Changes
	if changes != nil {
		start, err := p.firstTime("start_datetime", changes.StartDateTime)
		if err != nil {
			return nil, err
		}
		end, err := p.firstTime("end_datetime", changes.EndDateTime)
		if err != nil {
			return nil, err
		}
		out = Changes{
			Summary:     strings.TrimSpace(changes.Summary),
			Description: changes.Description,
			Start:       start,
			End:         end,
		}
	}

	return UpdateEvent{Target: target, Changes: out}, nil
}

func (p *Parser) decodeDelete(raw json.RawMessage) (Request, error) {
	var in refParams
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	target, err := p.decodeRef(in)
	if err != nil {
		return nil, err
	}
	return DeleteEvent{Target: target}, nil
}

func (p *Parser) decodeCheck(raw json.RawMessage) (Request, error) {
	var in rangeParams
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	start, err := p.firstTime("start_datetime", in.StartDateTime, in.TimeMin)
	if err != nil {
		return nil, err
	}
	end, err := p.firstTime("end_datetime", in.EndDateTime, in.TimeMax)
	if err != nil {
		return nil, err
	}
	return CheckAvailability{Start: start, End: end}, nil
}

// firstTime parses the first non-empty candidate. A parse failure is
// reported against field.
func (p *Parser) firstTime(field string, candidates ...string) (time.Time, error) {
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		t, err := parseTime(c, p.Location)
		if err != nil {
			return time.Time{}, &ParamError{Field: field, Err: err}
		}
		return p.normalize(t), nil
	}
	return time.Time{}, nil
}

func (p *Parser) normalize(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(p.Location)
}

// StripCodeFence removes a surrounding Markdown code fence, with or without
// a language tag, and the whitespace around it.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Anything up to the first newline is the language tag.
		s = s[nl+1:]
	} else {
		s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
