package screenshot

// CSS selectors coupled to the target web UI. This list is an external
// contract co-versioned with the UI; renames there must land here.
const (
	// chartContainerSelector wraps every rendered chart.
	chartContainerSelector = ".chart-container"

	// loadingSelector marks in-flight chart queries.
	loadingSelector = ".loading"

	// standaloneSelector is the dashboard body in standalone-report
	// mode.
	standaloneSelector = ".standalone"

	// gridContainerSelector is present even on dashboards with no
	// charts.
	gridContainerSelector = ".grid-container"

	// sliceContainerSelector is the legacy explore chart wrapper.
	sliceContainerSelector = ".slice_container"

	// exploreAnyChartSelector matches every known chart wrapper
	// variant, the second-to-last explore fallback.
	exploreAnyChartSelector = ".chart, .slice-container, .chart-content, [data-test='chart-container']"
)

// Explore chrome hidden before capture.
const (
	exploreDataSourcePanelSelector  = "[data-test='datasource-control']"
	exploreControlsColumnSelector   = "[data-test='control-tabs']"
	exploreNavHeaderSelector        = "header.top, [data-test='navbar-container']"
	exploreChartHeaderActionsSelect = ".header-with-actions .right-button-panel"
	exploreChartPanelSelector       = "[data-test='chart-panel']"
)

// exploreHideScript hides the explore chrome and expands the chart pane
// to full width so the capture shows only the visualization.
const exploreHideScript = `() => {
	const hide = (selector) => {
		document.querySelectorAll(selector).forEach((el) => {
			el.style.display = 'none';
		});
	};
	hide("` + exploreDataSourcePanelSelector + `");
	hide("` + exploreControlsColumnSelector + `");
	hide("` + exploreNavHeaderSelector + `");
	hide("` + exploreChartHeaderActionsSelect + `");
	const panel = document.querySelector("` + exploreChartPanelSelector + `");
	if (panel) {
		panel.style.width = '100%';
		panel.style.maxWidth = '100%';
		panel.style.flex = '1 1 100%';
	}
	return true;
}`
