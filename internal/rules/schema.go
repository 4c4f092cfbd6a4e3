package rules

// schemaCUE constrains rule files. Defaults fill the optional keys.
const schemaCUE = `
#TransformType: "replace" | "regex" | "uppercase" | "lowercase" | "strip" | "prefix" | "suffix"

#Mapping: {
	field:    string & !=""
	parent:   *"" | string
	standard: string & !=""
}

#Transformation: {
	field:     string & !=""
	type:      #TransformType
	parameter: *"" | string
	value:     *"" | string
	priority:  *0 | int
}

#Source: {
	mappings: *[] | [...#Mapping]
	transformations: *[] | [...#Transformation]
}

source: [string]: #Source
`
