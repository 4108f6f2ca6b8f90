// Package prometheus renders greenauth metrics in Prometheus text exposition
// format.
//
// [NewExporter] reads from any [MetricsSource], normally a *greenauth.Engine,
// and exposes an [http.Handler]. Counters are named greenauth_*_total; the
// single histogram is greenauth_authenticate_latency_seconds.
//
// Nothing is registered in a global registry; callers mount the Handler.
package prometheus
