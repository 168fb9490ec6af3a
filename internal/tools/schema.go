package tools

import "github.com/sashabaranov/go-openai/jsonschema"

const (
	dateTimeHint = "Format: YYYY-MM-DDTHH:MM:SS, local to the timezone parameter, without Z or offset"
	timezoneHint = "IANA timezone name such as America/New_York. Defaults to UTC"
)

func addEventSchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"title": {
				Type:        jsonschema.String,
				Description: "The title of the event",
			},
			"start_datetime": {
				Type:        jsonschema.String,
				Description: "Start date and time. " + dateTimeHint,
			},
			"end_datetime": {
				Type:        jsonschema.String,
				Description: "End date and time. " + dateTimeHint,
			},
			"description": {
				Type:        jsonschema.String,
				Description: "Optional event description",
			},
			"location": {
				Type:        jsonschema.String,
				Description: "Optional event location",
			},
			"timezone": {
				Type:        jsonschema.String,
				Description: timezoneHint,
			},
		},
		Required: []string{"title", "start_datetime", "end_datetime"},
	}
}

func listEventsSchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"start_date": {
				Type:        jsonschema.String,
				Description: "Only events ending after this time. Format: YYYY-MM-DDTHH:MM:SS",
			},
			"end_date": {
				Type:        jsonschema.String,
				Description: "Only events starting before this time. Format: YYYY-MM-DDTHH:MM:SS",
			},
			"search_query": {
				Type:        jsonschema.String,
				Description: "Text to search for in event titles, descriptions and locations",
			},
			"max_results": {
				Type:        jsonschema.Integer,
				Description: "Maximum number of events to return, between 1 and 100. Defaults to 10",
			},
		},
	}
}

func eventIDSchema(description string) jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"event_id": {
				Type:        jsonschema.String,
				Description: description,
			},
		},
		Required: []string{"event_id"},
	}
}

func updateEventSchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"event_id": {
				Type:        jsonschema.String,
				Description: "The ID of the event to update",
			},
			"title": {
				Type:        jsonschema.String,
				Description: "New title",
			},
			"start_datetime": {
				Type:        jsonschema.String,
				Description: "New start date and time. " + dateTimeHint,
			},
			"end_datetime": {
				Type:        jsonschema.String,
				Description: "New end date and time. " + dateTimeHint,
			},
			"description": {
				Type:        jsonschema.String,
				Description: "New description. An empty string clears it",
			},
			"location": {
				Type:        jsonschema.String,
				Description: "New location. An empty string clears it",
			},
			"timezone": {
				Type:        jsonschema.String,
				Description: timezoneHint + "; applies to the new start and end",
			},
		},
		Required: []string{"event_id"},
	}
}
