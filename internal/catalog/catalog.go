// Package catalog holds the alert definitions provisioned in Hosted Graphite.
package catalog

import (
	"fmt"
	"time"

	"github.com/t77yq/hg-alerts/internal/model"
)

const (
	// NotificationChannel was created by hand in Hosted Graphite and is referenced by name
	NotificationChannel = "Notify DM 2ndline"

	// RouterApp only ships nginx logs
	RouterApp = "router"

	missingLogsPeriod = 10 // minutes; smoke tests emit logs every 5 minutes
)

// Environments that get missing-logs alerts. Staging is left out because of the
// account's alert quota; preview and production cover both ends of the pipeline.
var Environments = []string{"preview", "production"}

// Applications that get missing-logs alerts
var Applications = []string{
	"api",
	"search-api",
	"admin-frontend",
	"buyer-frontend",
	"briefs-frontend",
	"brief-responses-frontend",
	"router",
	"supplier-frontend",
	"user-frontend",
}

func notifyEveryMinute() model.NotificationType {
	return model.Every(time.Minute)
}

// StaticAlerts returns the hand-curated router error-rate and latency alerts
func StaticAlerts() []model.AlertSpec {
	return []model.AlertSpec{
		{
			Name:                 "Production Router 500s",
			Metric:               "cloudwatch.application_500s.production.router.500s.sum",
			AlertCriteria:        model.Above(0),
			NotificationChannels: []string{NotificationChannel},
			NotificationType:     notifyEveryMinute(),
			Info:                 "500s have occured",
		},
		{
			Name:                 "Production Router 429s",
			Metric:               "cloudwatch.router_429s.production.router.429s.sum",
			AlertCriteria:        model.Above(0),
			NotificationChannels: []string{NotificationChannel},
			NotificationType:     notifyEveryMinute(),
			Info: "429s responses being returned from the production router. Check CloudWatch for the IP address to make\n" +
				"sure this is a crawler rather than a legitimate request",
		},
		{
			Name:                 "Production Router slow requests (10+ seconds)",
			Metric:               "cloudwatch.request_time_buckets.production.router.request_time_bucket_9.sum",
			AlertCriteria:        model.Above(5),
			NotificationChannels: []string{NotificationChannel},
			NotificationType:     notifyEveryMinute(),
			Info:                 "5+ requests taking 10+ seconds from the production router in the last minute",
		},
		{
			Name:                 "Production Router slow requests (5-10 seconds)",
			Metric:               "cloudwatch.request_time_buckets.production.router.request_time_bucket_8.sum",
			AlertCriteria:        model.Above(5),
			NotificationChannels: []string{NotificationChannel},
			NotificationType:     notifyEveryMinute(),
			Info:                 "5+ requests taking 5-10 seconds from the production router in the last minute",
		},
	}
}

// MissingLogsAlert builds the alert that fires when an app stops shipping logs.
//
// For every app except the router the alert is a composite: it fires when either
// the nginx or the application log stream goes quiet, so one alert covers both.
// Whoever gets paged has to work out which stream stopped.
//
// Composite alerts cannot be edited through the Hosted Graphite UI, only via the API.
func MissingLogsAlert(environment, app string) model.AlertSpec {
	alert := model.AlertSpec{
		Name:                 fmt.Sprintf("%s %s missing logs", environment, app),
		Metric:               fmt.Sprintf("cloudwatch.incoming_log_events.%s.%s.nginx_logs.sum", environment, app),
		AlertCriteria:        model.Missing(missingLogsPeriod),
		NotificationChannels: []string{NotificationChannel},
		NotificationType:     notifyEveryMinute(),
		Info: fmt.Sprintf("No incoming log events metrics for the last 10 minutes for the %s app. "+
			"This could be either the application logs or the nginx logs or both. "+
			"This could indicate either a problem with metric shipping to Hosted Graphite or that the logs are not being created.\n"+
			"DO NOT MANUALLY EDIT - Set up through Hosted Graphite API so GUI may have inconsistencies. "+
			"See HG alerting API for details", app),
	}

	if app == RouterApp {
		return alert
	}

	alert.AdditionalCriteria = map[string]model.MetricCriteria{
		"b": {
			Metric:   fmt.Sprintf("cloudwatch.incoming_log_events.%s.%s.application_logs.sum", environment, app),
			Criteria: model.Missing(missingLogsPeriod),
		},
	}
	alert.Expression = "a || b"

	return alert
}
