package board

const itemFields = `
fragment ItemFields on Item {
  id
  name
  state
  created_at
  updated_at
  board { id name }
  group { id title }
  column_values { id type text value }
}`

// firstPageQuery opens the items_page cursor for one board.
const firstPageQuery = `query FirstPage($board: [ID!], $limit: Int!) {
  boards(ids: $board) {
    items_page(limit: $limit) {
      cursor
      items { ...ItemFields }
    }
  }
}` + itemFields

// nextPageQuery continues an open cursor.
const nextPageQuery = `query NextPage($cursor: String!, $limit: Int!) {
  next_items_page(limit: $limit, cursor: $cursor) {
    cursor
    items { ...ItemFields }
  }
}` + itemFields

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type itemsPage struct {
	Cursor *string `json:"cursor"`
	Items  []Item  `json:"items"`
}

type graphQLResponse struct {
	Data *struct {
		Boards []struct {
			ItemsPage *itemsPage `json:"items_page"`
		} `json:"boards"`
		NextItemsPage *itemsPage `json:"next_items_page"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`

	// legacy error envelope
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	StatusCode   int    `json:"status_code"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

func buildRequest(partitionID, cursor string, limit int) graphQLRequest {
	if cursor == "" {
		return graphQLRequest{
			Query: firstPageQuery,
			Variables: map[string]interface{}{
				"board": []string{partitionID},
				"limit": limit,
			},
		}
	}
	return graphQLRequest{
		Query: nextPageQuery,
		Variables: map[string]interface{}{
			"cursor": cursor,
			"limit":  limit,
		},
	}
}
