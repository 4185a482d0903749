// Package agent exposes the engine to the natural-language reasoning
// collaborator: a fixed registry of named operations with JSON argument
// schemas, and a chat-completion implementation of the Reasoner port.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"pipemedic/internal/domain"
	"pipemedic/internal/service"
)

// Operation is one invocable named operation. Results are JSON strings so
// the collaborator consumes every operation through the same contract. The
// engine never assumes which operations are called or in what order.
type Operation struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]interface{}
	Run        func(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds the fixed operation set.
type Registry struct {
	ops   map[string]*Operation
	order []string
}

// Operations returns the operations in registration order.
func (r *Registry) Operations() []*Operation {
	out := make([]*Operation, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.ops[name])
	}
	return out
}

// Invoke dispatches a named operation with JSON-decoded arguments.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs string) (string, error) {
	op, ok := r.ops[name]
	if !ok {
		return "", domain.ErrNotFound("unknown operation %q", name)
	}
	args := map[string]interface{}{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", domain.ErrValidation("bad arguments for %s: %v", name, err)
		}
	}
	return op.Run(ctx, args)
}

func (r *Registry) add(op *Operation) {
	r.ops[op.Name] = op
	r.order = append(r.order, op.Name)
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]interface{}, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func floatArg(args map[string]interface{}, key string, def float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return def
}

func asJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func schema(required []string, props map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func strProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func intProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc}
}

func numProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": desc}
}

// NewRegistry builds the fixed operation set over the engine services.
func NewRegistry(
	registry *service.RegistryService,
	ledger *service.LedgerService,
	drift *service.DriftService,
	quality *service.QualityService,
	audit *service.AuditService,
	sandbox *service.SandboxService,
	models domain.ModelStore,
) *Registry {
	r := &Registry{ops: make(map[string]*Operation)}

	r.add(&Operation{
		Name:        "pipeline_status",
		Description: "Health-classified status of one pipeline, or of all active pipelines when no name is given. Failures sort first.",
		Parameters: schema(nil, map[string]interface{}{
			"name": strProp("pipeline name; omit for all pipelines"),
		}),
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			if name := stringArg(args, "name"); name != "" {
				status, err := registry.Status(ctx, name)
				if err != nil {
					return "", err
				}
				return asJSON(statusPayload(*status))
			}
			statuses, err := registry.Statuses(ctx)
			if err != nil {
				return "", err
			}
			out := make([]map[string]interface{}, 0, len(statuses))
			for _, st := range statuses {
				out = append(out, statusPayload(st))
			}
			return asJSON(out)
		},
	})

	r.add(&Operation{
		Name:        "pipeline_dependencies",
		Description: "Direct upstream and downstream neighbors of a pipeline in the dependency graph.",
		Parameters: schema([]string{"name"}, map[string]interface{}{
			"name": strProp("pipeline name"),
		}),
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			name := stringArg(args, "name")
			up, err := registry.Upstream(ctx, name)
			if err != nil {
				return "", err
			}
			down, err := registry.Downstream(ctx, name)
			if err != nil {
				return "", err
			}
			return asJSON(map[string]interface{}{
				"pipeline":   name,
				"upstream":   pipelineNames(up),
				"downstream": pipelineNames(down),
			})
		},
	})

	r.add(&Operation{
		Name:        "run_history",
		Description: "Most recent runs of a pipeline, newest first.",
		Parameters: schema([]string{"name"}, map[string]interface{}{
			"name":  strProp("pipeline name"),
			"limit": intProp("number of runs, default 10"),
		}),
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			runs, err := ledger.History(ctx, stringArg(args, "name"), intArg(args, "limit", 0))
			if err != nil {
				return "", err
			}
			out := make([]map[string]interface{}, 0, len(runs))
			for i := range runs {
				out = append(out, runPayload(&runs[i]))
			}
			return asJSON(out)
		},
	})

	r.add(&Operation{
		Name:        "schema_drift",
		Description: "Compare a table's live column layout against its stored snapshot; reports added and removed columns.",
		Parameters: schema([]string{"table"}, map[string]interface{}{
			"table": strProp("table name"),
		}),
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			d, err := drift.Drift(ctx, stringArg(args, "table"))
			if err != nil {
				return "", err
			}
			return asJSON(map[string]interface{}{
				"table":           d.TableName,
				"drift_detected":  d.DriftDetected,
				"columns_added":   d.ColumnsAdded,
				"columns_removed": d.ColumnsRemoved,
			})
		},
	})

	r.add(&Operation{
		Name:        "monitored_tables",
		Description: "Tables with a stored schema snapshot, available for drift checks.",
		Parameters:  schema(nil, map[string]interface{}{}),
		Run: func(ctx context.Context, _ map[string]interface{}) (string, error) {
			tables, err := drift.MonitoredTables(ctx)
			if err != nil {
				return "", err
			}
			return asJSON(tables)
		},
	})

	r.add(&Operation{
		Name:        "quality_checks",
		Description: "Active quality checks of a pipeline with their most recent results. Checks never evaluated have a null result.",
		Parameters: schema([]string{"name"}, map[string]interface{}{
			"name": strProp("pipeline name"),
		}),
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			results, err := quality.CurrentResults(ctx, stringArg(args, "name"))
			if err != nil {
				return "", err
			}
			out := make([]map[string]interface{}, 0, len(results))
			for _, cr := range results {
				item := map[string]interface{}{
					"check":          cr.Check.Name,
					"check_type":     cr.Check.CheckType,
					"target_table":   cr.Check.TargetTable,
					"threshold_type": cr.Check.ThresholdType,
					"threshold":      cr.Check.ThresholdValue,
				}
				if cr.Result != nil {
					item["status"] = cr.Result.Status
					item["actual"] = cr.Result.ActualValue
					item["checked_at"] = cr.Result.CheckedAt.Format(time.RFC3339)
				} else {
					item["status"] = nil
				}
				out = append(out, item)
			}
			return asJSON(out)
		},
	})

	r.add(&Operation{
		Name:        "pipelines_with_quality_checks",
		Description: "Pipelines carrying active quality checks, with check counts.",
		Parameters:  schema(nil, map[string]interface{}{}),
		Run: func(ctx context.Context, _ map[string]interface{}) (string, error) {
			counts, err := quality.PipelinesWithChecks(ctx)
			if err != nil {
				return "", err
			}
			return asJSON(counts)
		},
	})

	r.add(&Operation{
		Name:        "run_diagnostic_query",
		Description: "Execute a read-only SQL query against the warehouse. Mutation statements are rejected. At most 100 rows are returned.",
		Parameters: schema([]string{"sql"}, map[string]interface{}{
			"sql": strProp("a SELECT, WITH, or EXPLAIN statement"),
		}),
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			result, err := sandbox.Execute(ctx, domain.ActorDiagnostics, stringArg(args, "sql"))
			if err != nil {
				// Sandbox rejections are useful feedback for the
				// collaborator, not hard failures of the tool loop.
				return asJSON(map[string]interface{}{"error": err.Error()})
			}
			return asJSON(result)
		},
	})

	r.add(&Operation{
		Name:        "log_action",
		Description: "Append an entry to the action audit log.",
		Parameters: schema([]string{"action_type", "summary"}, map[string]interface{}{
			"action_type": strProp("action type, e.g. diagnosis or escalation"),
			"summary":     strProp("one-line summary"),
			"pipeline":    strProp("associated pipeline name, optional"),
			"confidence":  numProp("confidence in [0,1], default 0.5"),
		}),
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			action := &domain.AgentAction{
				Actor:      domain.ActorDiagnostics,
				ActionType: stringArg(args, "action_type"),
				Summary:    stringArg(args, "summary"),
				Details:    "{}",
				Confidence: floatArg(args, "confidence", 0.5),
			}
			if name := stringArg(args, "pipeline"); name != "" {
				if p, err := registry.Status(ctx, name); err == nil {
					action.PipelineID = &p.Pipeline.ID
				}
			}
			recorded, err := audit.Record(ctx, action)
			if err != nil {
				return "", err
			}
			return asJSON(map[string]interface{}{
				"id":         recorded.ID,
				"created_at": recorded.CreatedAt.Format(time.RFC3339),
			})
		},
	})

	r.add(&Operation{
		Name:        "list_models",
		Description: "List the transformation definitions in the model store.",
		Parameters:  schema(nil, map[string]interface{}{}),
		Run: func(ctx context.Context, _ map[string]interface{}) (string, error) {
			descriptors, err := models.List()
			if err != nil {
				return "", err
			}
			return asJSON(descriptors)
		},
	})

	r.add(&Operation{
		Name:        "model_source",
		Description: "Read the source text of a transformation definition.",
		Parameters: schema([]string{"name"}, map[string]interface{}{
			"name": strProp("model name"),
		}),
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			source, err := models.Read(stringArg(args, "name"))
			if err != nil {
				return "", err
			}
			return asJSON(map[string]string{"name": stringArg(args, "name"), "source": source})
		},
	})

	r.add(&Operation{
		Name:        "failure_patterns",
		Description: "Recurring failures aggregated per pipeline and alert type, with occurrence counts and last-seen timestamps.",
		Parameters:  schema(nil, map[string]interface{}{}),
		Run: func(ctx context.Context, _ map[string]interface{}) (string, error) {
			patterns, err := audit.Patterns(ctx)
			if err != nil {
				return "", err
			}
			out := make([]map[string]interface{}, 0, len(patterns))
			for _, p := range patterns {
				out = append(out, map[string]interface{}{
					"pipeline":    p.PipelineName,
					"action_type": p.ActionType,
					"occurrences": p.Occurrences,
					"last_seen":   p.LastSeen.Format(time.RFC3339),
				})
			}
			return asJSON(out)
		},
	})

	r.add(&Operation{
		Name:        "action_history",
		Description: "Recent audit log entries, newest first, optionally filtered by actor or action type.",
		Parameters: schema(nil, map[string]interface{}{
			"actor":       strProp("filter by actor"),
			"action_type": strProp("filter by action type"),
			"limit":       intProp("number of entries, default 20"),
		}),
		Run: func(ctx context.Context, args map[string]interface{}) (string, error) {
			actions, err := audit.Recent(ctx, domain.ActionFilter{
				Actor:      stringArg(args, "actor"),
				ActionType: stringArg(args, "action_type"),
				Limit:      intArg(args, "limit", 0),
			})
			if err != nil {
				return "", err
			}
			out := make([]map[string]interface{}, 0, len(actions))
			for _, a := range actions {
				item := map[string]interface{}{
					"actor":       a.Actor,
					"action_type": a.ActionType,
					"summary":     a.Summary,
					"created_at":  a.CreatedAt.Format(time.RFC3339),
				}
				if a.PipelineName != nil {
					item["pipeline"] = *a.PipelineName
				}
				out = append(out, item)
			}
			return asJSON(out)
		},
	})

	return r
}

func statusPayload(st domain.PipelineStatus) map[string]interface{} {
	out := map[string]interface{}{
		"name":        st.Pipeline.Name,
		"health":      st.Health,
		"schedule":    st.Pipeline.Schedule,
		"sla_minutes": st.Pipeline.SLAMinutes,
		"owner":       st.Pipeline.Owner,
	}
	if st.Latest != nil {
		out["latest_run"] = runPayload(st.Latest)
	}
	return out
}

func runPayload(run *domain.PipelineRun) map[string]interface{} {
	out := map[string]interface{}{
		"id":         run.ID,
		"status":     run.Status,
		"started_at": run.StartedAt.Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		out["completed_at"] = run.CompletedAt.Format(time.RFC3339)
	}
	if run.DurationSeconds != nil {
		out["duration_seconds"] = *run.DurationSeconds
	}
	if run.RowCount != nil {
		out["row_count"] = *run.RowCount
	}
	if run.ErrorMessage != nil {
		out["error"] = *run.ErrorMessage
	}
	return out
}

func pipelineNames(pipelines []domain.Pipeline) []string {
	out := make([]string, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, p.Name)
	}
	return out
}
