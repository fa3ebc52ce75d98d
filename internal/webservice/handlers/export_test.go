package handlers

var ParseDateRange = parseDateRange
