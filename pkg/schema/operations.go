package schema

// JSON-schema map builders. Kept tiny on purpose; the documents below are
// descriptive, not enforced (validation happens in pkg/models).

func obj(props map[string]any, required ...string) map[string]any {
	m := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		m["required"] = required
	}
	return m
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func arrOf(items map[string]any, desc string) map[string]any {
	return map[string]any{"type": "array", "items": items, "description": desc}
}

func enum(desc string, values ...string) map[string]any {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return map[string]any{"type": "string", "enum": vals, "description": desc}
}

func filterSchema() map[string]any {
	return obj(map[string]any{
		"event_types": arrOf(str("exact type, prefix pattern like \"github.*\", or \"*\""),
			"event type patterns, OR within the list"),
		"tags":       arrOf(str("tag"), "match when the event shares at least one tag"),
		"priorities": arrOf(enum("priority", "low", "normal", "high", "critical"), "accepted priorities"),
		"sources":    arrOf(str("producer name"), "accepted sources"),
	})
}

func deliverySchema() map[string]any {
	return obj(map[string]any{
		"channels": arrOf(enum("delivery channel", "realtime", "cron", "scheduled"),
			"at least one channel; first aggregating channel decides the class"),
		"cron_schedule": obj(map[string]any{
			"expression":              str("five-field cron or preset (@hourly, @daily, @weekly, @monthly)"),
			"timezone":                str("IANA timezone, default UTC"),
			"aggregate_events":        boolean("batch events per fire, default true"),
			"max_events_per_delivery": integer("batch cap, oldest dropped beyond it"),
		}, "expression"),
		"scheduled_delivery": obj(map[string]any{
			"deliver_at":       str("RFC 3339 instant, must not be in the past"),
			"timezone":         str("IANA timezone, default UTC"),
			"aggregate_events": boolean("batch events at the fire, default true"),
			"auto_expire":      boolean("expire the subscription after the fire, default true"),
		}, "deliver_at"),
	}, "channels")
}

func handlerSchema() map[string]any {
	return obj(map[string]any{
		"type": enum("handler kind", "bash", "webhook", "agent"),
		"bash": obj(map[string]any{
			"command":         str("executable"),
			"args":            arrOf(str("argument"), "argv"),
			"cwd":             str("working directory"),
			"env":             obj(map[string]any{}),
			"input_mode":      enum("how events reach the command", "stdin", "argv", "none"),
			"timeout_seconds": integer("kill after this many seconds"),
		}, "command"),
		"webhook": obj(map[string]any{
			"url":             str("http(s) endpoint, receives the events as JSON"),
			"headers":         obj(map[string]any{}),
			"timeout_seconds": integer("abort after this many seconds"),
		}, "url"),
		"agent": obj(map[string]any{
			"model":         str("model identifier"),
			"system_prompt": str("system prompt"),
			"instructions":  str("per-invocation instructions"),
			"tools":         arrOf(str("tool name"), "tools the agent may use"),
			"max_tokens":    integer("completion cap"),
		}, "model"),
	}, "type")
}

func subscriptionSchema() map[string]any {
	return obj(map[string]any{
		"id":         str("server-assigned id"),
		"client_id":  str("owning client"),
		"filter":     filterSchema(),
		"delivery":   deliverySchema(),
		"handler":    handlerSchema(),
		"status":     enum("lifecycle state", "active", "paused", "expired"),
		"created_at": str("RFC 3339"),
		"updated_at": str("RFC 3339"),
		"expires_at": str("RFC 3339, absent when the subscription does not expire"),
	})
}

func operations() []OperationSchema {
	return []OperationSchema{
		{
			Name:        "initialize",
			Description: "Open the session. Must be the first request; every other method except ping fails with -32000 until it succeeds.",
			Input: obj(map[string]any{
				"protocol_version": str("must be a version the hub supports"),
				"client_info": obj(map[string]any{
					"name":      str("client display name"),
					"version":   str("client version"),
					"client_id": str("stable identity; reattaches detached subscriptions after a reconnect"),
				}),
			}, "protocol_version"),
			Output: obj(map[string]any{
				"protocol_version": str("negotiated version"),
				"server_info":      obj(map[string]any{"name": str("server name"), "version": str("build version")}),
				"capabilities":     obj(map[string]any{}),
			}),
			Example: map[string]any{
				"protocol_version": "2025-01-01",
				"client_info":      map[string]any{"name": "deploy-bot", "client_id": "deploy-bot"},
			},
		},
		{
			Name:        "ping",
			Description: "Liveness probe. Allowed before initialize.",
			Input:       obj(map[string]any{}),
			Output:      obj(map[string]any{}),
		},
		{
			Name:        "mcpe/capabilities",
			Description: "Return the capability document: supported channels, filters, scheduling features, handler types, and limits.",
			Input:       obj(map[string]any{}),
			Output:      obj(map[string]any{}),
		},
		{
			Name:        "mcpe/schema",
			Description: "Return one schema per client-callable method.",
			Input:       obj(map[string]any{}),
			Output: obj(map[string]any{
				"operations": arrOf(obj(map[string]any{
					"name":        str("method name"),
					"description": str("what it does"),
				}), "operation schemas"),
			}),
		},
		{
			Name:        "subscriptions/create",
			Description: "Create a subscription. Returns the full subscription including its server-assigned id.",
			Input: obj(map[string]any{
				"filter":     filterSchema(),
				"delivery":   deliverySchema(),
				"handler":    handlerSchema(),
				"expires_at": str("RFC 3339, must be in the future"),
			}, "delivery"),
			Output: subscriptionSchema(),
			Example: map[string]any{
				"filter":   map[string]any{"event_types": []any{"github.*"}},
				"delivery": map[string]any{"channels": []any{"realtime"}},
			},
		},
		{
			Name:        "subscriptions/remove",
			Description: "Delete a subscription you own. Unknown or foreign ids fail with -32001.",
			Input:       obj(map[string]any{"subscription_id": str("id from create")}, "subscription_id"),
			Output:      obj(map[string]any{"success": boolean("always true on success")}),
		},
		{
			Name:        "subscriptions/list",
			Description: "List your subscriptions, optionally filtered by status. Expired subscriptions remain listed until garbage-collected.",
			Input:       obj(map[string]any{"status": enum("filter", "active", "paused", "expired")}),
			Output: obj(map[string]any{
				"subscriptions": arrOf(subscriptionSchema(), "sorted by creation time"),
				"count":         integer("len(subscriptions)"),
			}),
		},
		{
			Name:        "subscriptions/update",
			Description: "Partially update a subscription. Only provided fields change; the update is validated as a whole before any of it commits. Expired subscriptions cannot be updated.",
			Input: obj(map[string]any{
				"subscription_id": str("id from create"),
				"filter":          filterSchema(),
				"delivery":        deliverySchema(),
				"handler":         handlerSchema(),
				"expires_at":      str("RFC 3339, must be in the future"),
			}, "subscription_id"),
			Output: subscriptionSchema(),
		},
		{
			Name:        "subscriptions/pause",
			Description: "Stop deliveries without losing the subscription. Paused subscriptions still count toward the per-client limit. Idempotent.",
			Input:       obj(map[string]any{"subscription_id": str("id from create")}, "subscription_id"),
			Output: obj(map[string]any{
				"success": boolean("always true on success"),
				"status":  enum("resulting status", "paused"),
			}),
		},
		{
			Name:        "subscriptions/resume",
			Description: "Resume deliveries of a paused subscription. Events published while paused are not replayed. Idempotent.",
			Input:       obj(map[string]any{"subscription_id": str("id from create")}, "subscription_id"),
			Output: obj(map[string]any{
				"success": boolean("always true on success"),
				"status":  enum("resulting status", "active"),
			}),
		},
		{
			Name:        "events/acknowledge",
			Description: "Acknowledge delivered events. Accepted and ignored: delivery is best-effort and nothing is retained for redelivery.",
			Input: obj(map[string]any{
				"subscription_id": str("subscription the events belonged to"),
				"event_ids":       arrOf(str("event id"), "acknowledged events"),
			}),
			Output: obj(map[string]any{"success": boolean("always true")}),
		},
	}
}
